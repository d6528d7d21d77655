package storage_test

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kcalhq/kcal/internal/model"
	"github.com/kcalhq/kcal/internal/storage"
	"github.com/kcalhq/kcal/internal/testutil"
)

// testDB holds a shared test database connection for all tests in this package.
var testDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	tc := testutil.MustStartPostgres()
	defer tc.Terminate()

	var err error
	testDB, err = tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "storage test: %v\n", err)
		os.Exit(1)
	}
	defer testDB.Close()

	os.Exit(m.Run())
}

func requireDB(t *testing.T) {
	t.Helper()
	if testing.Short() || testDB == nil {
		t.Skip("integration test requires a database")
	}
}

func ptr(v float64) *float64 { return &v }

func TestInsertAndListMeals(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	principal := "insert-user"

	saved, err := testDB.InsertMeal(ctx, model.MealRecord{
		UserID:   principal,
		Name:     "Chicken Burrito",
		Calories: ptr(480),
		Protein:  ptr(32),
	})
	require.NoError(t, err)
	assert.Positive(t, saved.ID)
	assert.False(t, saved.CreatedAt.IsZero())

	recs, err := testDB.ListMeals(ctx, principal, model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Chicken Burrito", recs[0].Name)
	require.NotNil(t, recs[0].Calories)
	assert.Equal(t, 480.0, *recs[0].Calories)
	assert.Nil(t, recs[0].Carbs)
}

func TestListMealsScopedToPrincipal(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	_, err := testDB.InsertMeal(ctx, model.MealRecord{UserID: "scope-a", Name: "Oatmeal"})
	require.NoError(t, err)
	_, err = testDB.InsertMeal(ctx, model.MealRecord{UserID: "scope-b", Name: "Toast"})
	require.NoError(t, err)

	recs, err := testDB.ListMeals(ctx, "scope-a", model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Oatmeal", recs[0].Name)
}

func TestListMealsWindow(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	principal := "window-user"

	yesterday := time.Now().UTC().Add(-24 * time.Hour)
	_, err := testDB.InsertMeal(ctx, model.MealRecord{
		UserID: principal, Name: "Old Meal", CreatedAt: yesterday,
	})
	require.NoError(t, err)
	_, err = testDB.InsertMeal(ctx, model.MealRecord{
		UserID: principal, Name: "Fresh Meal",
	})
	require.NoError(t, err)

	recs, err := testDB.ListMeals(ctx, principal, model.DayFilter(time.Now()))
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Fresh Meal", recs[0].Name)
}

func TestUpdateMealPartial(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	principal := "update-user"

	saved, err := testDB.InsertMeal(ctx, model.MealRecord{
		UserID: principal, Name: "Oatmeal", Calories: ptr(300), Protein: ptr(10),
	})
	require.NoError(t, err)

	err = testDB.UpdateMeal(ctx, principal, saved.ID, model.MealFields{Calories: ptr(350)})
	require.NoError(t, err)

	recs, err := testDB.ListMeals(ctx, principal, model.ListFilter{})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "Oatmeal", recs[0].Name)
	assert.Equal(t, 350.0, *recs[0].Calories)
	assert.Equal(t, 10.0, *recs[0].Protein)
}

func TestUpdateMealWrongPrincipal(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	saved, err := testDB.InsertMeal(ctx, model.MealRecord{UserID: "owner", Name: "Oatmeal"})
	require.NoError(t, err)

	err = testDB.UpdateMeal(ctx, "intruder", saved.ID, model.MealFields{Calories: ptr(1)})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteMeal(t *testing.T) {
	requireDB(t)
	ctx := context.Background()
	principal := "delete-user"

	saved, err := testDB.InsertMeal(ctx, model.MealRecord{UserID: principal, Name: "Oatmeal"})
	require.NoError(t, err)

	require.NoError(t, testDB.DeleteMeal(ctx, principal, saved.ID))

	err = testDB.DeleteMeal(ctx, principal, saved.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestDeleteMealWrongPrincipal(t *testing.T) {
	requireDB(t)
	ctx := context.Background()

	saved, err := testDB.InsertMeal(ctx, model.MealRecord{UserID: "owner2", Name: "Oatmeal"})
	require.NoError(t, err)

	err = testDB.DeleteMeal(ctx, "intruder", saved.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	recs, err := testDB.ListMeals(ctx, "owner2", model.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}
