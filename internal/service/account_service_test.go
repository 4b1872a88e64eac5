package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"familypoints/internal/models"
	"familypoints/internal/security"
	"familypoints/internal/validation"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUpAndSignIn(t *testing.T) {
	store := newFakeStore()
	auth := NewAuthService(store, security.NewTokenManager("test-secret", time.Hour), nil)
	ctx := context.Background()

	user, err := auth.SignUp(ctx, "  Sam@Example.com ", "correct horse", "Sam")
	require.NoError(t, err)
	assert.Equal(t, "sam@example.com", user.Email)
	assert.Equal(t, models.RoleMember, user.Role)
	assert.Equal(t, 0, user.Points)
	assert.Nil(t, user.FamilyID)

	_, err = auth.SignUp(ctx, "sam@example.com", "another password", "Sam")
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, _, err = auth.SignIn(ctx, "sam@example.com", "wrong password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	token, signedIn, err := auth.SignIn(ctx, "SAM@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, signedIn.ID)

	current, err := auth.CurrentUser(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, current.ID)

	_, err = auth.CurrentUser(ctx, token+"x")
	assert.ErrorIs(t, err, security.ErrInvalidToken)
}

func TestSignUpValidation(t *testing.T) {
	auth := NewAuthService(newFakeStore(), security.NewTokenManager("s", time.Hour), nil)

	tests := []struct {
		name     string
		email    string
		password string
		fullName string
		field    string
	}{
		{name: "bad email", email: "nope", password: "longenough", fullName: "Sam", field: "email"},
		{name: "short password", email: "a@b.co", password: "short", fullName: "Sam", field: "password"},
		{name: "missing name", email: "a@b.co", password: "longenough", fullName: "", field: "full_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.SignUp(context.Background(), tt.email, tt.password, tt.fullName)
			var vErr validation.ValidationError
			require.ErrorAs(t, err, &vErr)
			assert.Equal(t, tt.field, vErr.Field)
		})
	}
}

func TestCreateAndJoinFamily(t *testing.T) {
	store := newFakeStore()
	families := NewFamilyService(store, store)
	ctx := context.Background()
	parent := store.seedUser("Mum", models.RoleMember, "")
	child := store.seedUser("Sam", models.RoleMember, "")

	family, err := families.CreateFamily(ctx, "Parker", parent.ID)
	require.NoError(t, err)
	assert.Equal(t, parent.ID, family.AdminID)
	assert.Equal(t, models.RoleAdmin, store.users[parent.ID].Role)

	_, err = families.CreateFamily(ctx, "Second", parent.ID)
	assert.ErrorIs(t, err, ErrAlreadyInFamily)

	_, err = families.JoinFamily(ctx, "not-a-code", child.ID)
	var vErr validation.ValidationError
	assert.ErrorAs(t, err, &vErr)

	_, err = families.JoinFamily(ctx, uuid.NewString(), child.ID)
	assert.ErrorIs(t, err, ErrFamilyNotFound)

	joined, err := families.JoinFamily(ctx, family.ID, child.ID)
	require.NoError(t, err)
	assert.Equal(t, family.ID, joined.ID)
	assert.Equal(t, models.RoleMember, store.users[child.ID].Role)

	view, err := families.GetFamily(ctx, family.ID)
	require.NoError(t, err)
	require.Len(t, view.Members, 2)
	assert.Equal(t, parent.ID, view.Members[0].ID)
}

func TestReconcileFindsMismatches(t *testing.T) {
	fx := newFixture(true)
	audit := NewAuditService(fx.store, fx.store, fx.store, fx.store, fx.store, fx.store)
	fx.store.seedPoints(t, fx.member.ID, 40)

	mismatches, err := audit.Reconcile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, mismatches)

	fx.store.users[fx.member.ID].Points = 1000

	mismatches, err = audit.Reconcile(context.Background())
	require.NoError(t, err)
	require.Len(t, mismatches, 1)
	assert.Equal(t, fx.member.ID, mismatches[0].UserID)
	assert.Equal(t, 40, mismatches[0].JournalTotal)
}

func TestExportFamily(t *testing.T) {
	fx := newFixture(true)
	audit := NewAuditService(fx.store, fx.store, fx.store, fx.store, fx.store, fx.store)
	fx.createTask(t, 10)
	fx.createReward(t, "Movie Night", 50, false)
	fx.store.seedPoints(t, fx.member.ID, 60)

	var buf bytes.Buffer
	require.NoError(t, audit.ExportFamily(context.Background(), fx.familyID, &buf))

	var snapshot FamilySnapshot
	require.NoError(t, json.Unmarshal(buf.Bytes(), &snapshot))
	assert.Equal(t, fx.familyID, snapshot.Family.ID)
	assert.Len(t, snapshot.Members, 2)
	assert.Len(t, snapshot.Tasks, 1)
	assert.Len(t, snapshot.Rewards, 1)
	assert.Len(t, snapshot.Transactions, 1)

	err := audit.ExportFamily(context.Background(), uuid.NewString(), &buf)
	assert.ErrorIs(t, err, ErrFamilyNotFound)
}
