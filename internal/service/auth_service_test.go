package service

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	req := require.New(t)
	users := newMemUserRepo()
	auth := NewAuthService(users, "test-secret")
	ctx := context.Background()

	input := RegisterInput{
		Email:       "alice@campus.edu",
		Username:    "alice",
		DisplayName: "Alice L",
		Password:    "Sup3rSecret",
	}

	resp, err := auth.Register(ctx, input)
	req.NoError(err)
	req.Equal("alice", resp.User.Username)
	req.True(resp.User.IsVerified)
	req.NotEmpty(resp.AccessToken)
	req.NotEqual(input.Password, resp.User.PasswordHash)

	// The issued token carries the account identity and this service's issuer.
	token, err := jwt.Parse(resp.AccessToken, func(t *jwt.Token) (any, error) {
		return []byte("test-secret"), nil
	})
	req.NoError(err)
	sub, err := token.Claims.GetSubject()
	req.NoError(err)
	req.Equal(resp.User.ID.String(), sub)
	iss, err := token.Claims.GetIssuer()
	req.NoError(err)
	req.Equal(TokenIssuer, iss)
	claims, ok := token.Claims.(jwt.MapClaims)
	req.True(ok)
	req.Equal("alice", claims["username"])

	login, err := auth.Login(ctx, LoginInput{Email: input.Email, Password: input.Password})
	req.NoError(err)
	req.Equal(resp.User.ID, login.User.ID)

	_, err = auth.Login(ctx, LoginInput{Email: input.Email, Password: "WrongPass1"})
	req.ErrorIs(err, ErrInvalidCreds)

	_, err = auth.Login(ctx, LoginInput{Email: "nobody@campus.edu", Password: input.Password})
	req.ErrorIs(err, ErrInvalidCreds)
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	req := require.New(t)
	users := newMemUserRepo()
	auth := NewAuthService(users, "test-secret")
	ctx := context.Background()

	_, err := auth.Register(ctx, RegisterInput{
		Email: "alice@campus.edu", Username: "alice", DisplayName: "Alice", Password: "Sup3rSecret",
	})
	req.NoError(err)

	_, err = auth.Register(ctx, RegisterInput{
		Email: "alice@campus.edu", Username: "alice2", DisplayName: "Alice", Password: "Sup3rSecret",
	})
	req.ErrorIs(err, ErrEmailTaken)

	_, err = auth.Register(ctx, RegisterInput{
		Email: "alice2@campus.edu", Username: "alice", DisplayName: "Alice", Password: "Sup3rSecret",
	})
	req.ErrorIs(err, ErrUsernameTaken)
}

func TestPasswordHashRoundTrip(t *testing.T) {
	req := require.New(t)

	hash, err := hashPassword("Sup3rSecret")
	req.NoError(err)
	req.True(verifyPassword("Sup3rSecret", hash))
	req.False(verifyPassword("Sup3rSecreT", hash))
	req.False(verifyPassword("Sup3rSecret", "garbage"))

	// Salted: the same password never hashes the same twice.
	again, err := hashPassword("Sup3rSecret")
	req.NoError(err)
	req.NotEqual(hash, again)
}
