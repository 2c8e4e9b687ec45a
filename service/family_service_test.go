package service

import (
	"strings"
	"testing"

	"familypoints/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestFamilyService_CreateFamily(t *testing.T) {
	f := newTestFixture(t, 0)
	svc := NewFamilyService(f.factory)

	f.uow.Families.On("Create", f.ctx, "The Parkers", mock.MatchedBy(func(code string) bool {
		return len(code) == 8 && code == strings.ToUpper(code)
	})).Return(&models.Family{ID: testFamilyID, Name: "The Parkers", LookupCode: "ABCD1234"}, nil)

	family, err := svc.CreateFamily(f.ctx, "  The Parkers ")
	require.NoError(t, err)
	assert.Equal(t, testFamilyID, family.ID)

	_, err = svc.CreateFamily(f.ctx, " ")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFamilyService_AddChildOpensAccount(t *testing.T) {
	f := newTestFixture(t, 0)
	f.expectLedger()
	svc := NewFamilyService(f.factory)

	child := &models.Child{ID: testChildID, FamilyID: testFamilyID, Name: "Alex"}
	f.uow.Families.On("CreateChild", f.ctx, testFamilyID, "Alex").Return(child, nil)
	f.uow.Accounts.On("Create", f.ctx, testChildID, testFamilyID).Return(f.account, nil)

	created, err := svc.AddChild(f.ctx, f.parent, "Alex", 25)
	require.NoError(t, err)
	assert.Equal(t, child, created)
	assert.Equal(t, int64(25), f.account.Balance)
	require.Len(t, f.entries, 1)
	assert.Equal(t, models.ReferenceTypeAccountOpening, f.entries[0].ReferenceType)
	assert.Equal(t, "100", f.entries[0].ReferenceID)
}

func TestFamilyService_AddChildRejections(t *testing.T) {
	f := newTestFixture(t, 0)
	svc := NewFamilyService(f.factory)

	_, err := svc.AddChild(f.ctx, f.child, "Sam", 0)
	assert.ErrorIs(t, err, ErrAuthorization)

	_, err = svc.AddChild(f.ctx, f.parent, "Sam", -5)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.AddChild(f.ctx, nil, "Sam", 0)
	assert.ErrorIs(t, err, ErrAuthorization)

	f.uow.Families.AssertNotCalled(t, "CreateChild", mock.Anything, mock.Anything, mock.Anything)
}

func TestFamilyService_LookupFamily(t *testing.T) {
	f := newTestFixture(t, 0)
	svc := NewFamilyService(f.factory)

	f.uow.Families.On("GetByLookupCode", f.ctx, "ABCD1234").
		Return(&models.Family{ID: testFamilyID, Name: "The Parkers"}, nil)
	f.uow.Families.On("GetByLookupCode", f.ctx, "NOPE").Return(nil, nil)
	f.uow.Families.On("ListChildren", f.ctx, testFamilyID).Return([]*models.Child{
		{ID: 100, Name: "Alex"},
		{ID: 101, Name: "Sam"},
	}, nil)

	lookup, err := svc.LookupFamily(f.ctx, " abcd1234 ")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alex", "Sam"}, lookup.ChildNames)

	_, err = svc.LookupFamily(f.ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = svc.LookupFamily(f.ctx, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestNewLookupCode(t *testing.T) {
	seen := make(map[string]bool)
	for range 100 {
		code := newLookupCode()
		assert.Len(t, code, 8)
		assert.Equal(t, strings.ToUpper(code), code)
		seen[code] = true
	}
	assert.Greater(t, len(seen), 95)
}
