package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/deeplink-chat/deeplink-go-api/internal/dto"
	"github.com/deeplink-chat/deeplink-go-api/internal/models"
	"github.com/deeplink-chat/deeplink-go-api/internal/store"
)

func newIdentityFixture(t *testing.T) (*store.Store, IdentityService) {
	t.Helper()
	st := store.New(store.Persistence{}, zerolog.Nop())

	_, err := st.CreateChannel(context.Background(), models.Channel{
		ID:   "general",
		Name: "general",
		Kind: models.ChannelKindChat,
	})
	require.NoError(t, err)

	svc := NewIdentityService(st, validator.New(validator.WithRequiredStructEnabled()), "test-secret", zerolog.Nop())
	return st, svc
}

func TestRegisterCreatesUserAndJoinsPublicChannels(t *testing.T) {
	st, svc := newIdentityFixture(t)

	response, err := svc.Register(context.Background(), dto.RegisterRequest{Username: "alice", Nickname: "Al"})
	require.NoError(t, err)
	require.False(t, response.Existing)
	require.Len(t, response.User.ID, 8)
	require.Equal(t, "alice", response.User.Username)
	require.Equal(t, "👤", response.User.Avatar)
	require.Len(t, response.Token, 32)
	require.NotEmpty(t, response.AccessToken)

	general, err := st.GetChannel("general")
	require.NoError(t, err)
	require.True(t, general.HasMember(response.User.ID))

	userID, err := svc.VerifyAccessToken(response.AccessToken)
	require.NoError(t, err)
	require.Equal(t, response.User.ID, userID)
}

func TestRegisterExistingUsernameIsAutoLogin(t *testing.T) {
	_, svc := newIdentityFixture(t)

	first, err := svc.Register(context.Background(), dto.RegisterRequest{Username: "alice"})
	require.NoError(t, err)

	second, err := svc.Register(context.Background(), dto.RegisterRequest{Username: "ALICE"})
	require.NoError(t, err)
	require.True(t, second.Existing)
	require.Equal(t, first.User.ID, second.User.ID)
	require.Equal(t, first.Token, second.Token)
}

func TestRegisterRotatesAvatars(t *testing.T) {
	_, svc := newIdentityFixture(t)

	avatars := make([]string, 0, 3)
	for _, username := range []string{"alice", "bob", "carol"} {
		response, err := svc.Register(context.Background(), dto.RegisterRequest{Username: username})
		require.NoError(t, err)
		avatars = append(avatars, response.User.Avatar)
	}
	require.Equal(t, []string{"👤", "👨", "👩"}, avatars)
}

func TestLogin(t *testing.T) {
	_, svc := newIdentityFixture(t)

	registered, err := svc.Register(context.Background(), dto.RegisterRequest{Username: "alice"})
	require.NoError(t, err)

	response, err := svc.Login(context.Background(), dto.LoginRequest{UserID: registered.User.ID, Token: registered.Token})
	require.NoError(t, err)
	require.True(t, response.Existing)
	require.NotEmpty(t, response.AccessToken)

	_, err = svc.Login(context.Background(), dto.LoginRequest{UserID: registered.User.ID, Token: "wrong"})
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = svc.Login(context.Background(), dto.LoginRequest{UserID: "missing", Token: registered.Token})
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestUpdateProfile(t *testing.T) {
	_, svc := newIdentityFixture(t)

	registered, err := svc.Register(context.Background(), dto.RegisterRequest{Username: "alice"})
	require.NoError(t, err)

	nickname := "Allie"
	bio := "ops engineer"
	updated, err := svc.UpdateProfile(context.Background(), registered.User.ID, dto.ProfileUpdateRequest{
		Nickname: &nickname,
		Bio:      &bio,
	})
	require.NoError(t, err)
	require.Equal(t, "Allie", updated.Nickname)
	require.Equal(t, "ops engineer", updated.Bio)
	// Untouched fields keep their values.
	require.Equal(t, registered.User.Avatar, updated.Avatar)
}

func TestVerifyAccessTokenRejectsGarbage(t *testing.T) {
	_, svc := newIdentityFixture(t)

	_, err := svc.VerifyAccessToken("not-a-token")
	require.ErrorIs(t, err, ErrUnauthorized)
}
