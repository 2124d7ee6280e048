package repository_test

import (
	"context"
	"testing"

	"membership-payments/internal/model"
	"membership-payments/internal/repository"
	"membership-payments/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrollmentOutsideTransaction(t *testing.T) {
	ctx := context.Background()
	db := testutil.NewDB(t)
	testutil.CreateUser(t, db, 1)
	repo := repository.NewEnrollmentRepository(db)

	first, second := "ws-1-7-1690000000000-aaaaaa", "ws-1-7-1690000000001-bbbbbb"

	require.NoError(t, repo.Enroll(ctx, nil, &model.WorkshopEnrollment{UserID: 1, WorkshopID: 7, OrderID: first}))
	require.NoError(t, repo.Enroll(ctx, nil, &model.WorkshopEnrollment{UserID: 1, WorkshopID: 7, OrderID: second}))

	enrollments, err := repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, first, enrollments[0].OrderID, "first enrollment wins")

	require.NoError(t, repo.Reassign(ctx, nil, 1, 7, second))
	enrollments, err = repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	require.Len(t, enrollments, 1)
	assert.Equal(t, second, enrollments[0].OrderID)

	require.NoError(t, repo.Unenroll(ctx, nil, 1, 7))
	enrollments, err = repo.ListByUser(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, enrollments)
}
