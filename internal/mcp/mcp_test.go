package mcp

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/kcalhq/kcal/internal/ctxutil"
	"github.com/kcalhq/kcal/internal/model"
	"github.com/kcalhq/kcal/internal/resolve"
	"github.com/kcalhq/kcal/internal/service/meals"
	"github.com/kcalhq/kcal/internal/storage"
)

// memStore is an in-memory meal store satisfying both the service and the
// resolver store interfaces.
type memStore struct {
	nextID  int64
	records map[int64]model.MealRecord
}

func newMemStore() *memStore {
	return &memStore{nextID: 1, records: make(map[int64]model.MealRecord)}
}

func (s *memStore) InsertMeal(_ context.Context, rec model.MealRecord) (model.MealRecord, error) {
	rec.ID = s.nextID
	s.nextID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[rec.ID] = rec
	return rec, nil
}

func (s *memStore) UpdateMeal(_ context.Context, principal string, id int64, f model.MealFields) error {
	rec, ok := s.records[id]
	if !ok || rec.UserID != principal {
		return storage.ErrNotFound
	}
	if f.Name != nil {
		rec.Name = *f.Name
	}
	if f.Calories != nil {
		rec.Calories = f.Calories
	}
	if f.Protein != nil {
		rec.Protein = f.Protein
	}
	if f.Carbs != nil {
		rec.Carbs = f.Carbs
	}
	if f.Fat != nil {
		rec.Fat = f.Fat
	}
	s.records[id] = rec
	return nil
}

func (s *memStore) DeleteMeal(_ context.Context, principal string, id int64) error {
	rec, ok := s.records[id]
	if !ok || rec.UserID != principal {
		return storage.ErrNotFound
	}
	delete(s.records, id)
	return nil
}

func (s *memStore) ListMeals(_ context.Context, principal string, f model.ListFilter) ([]model.MealRecord, error) {
	var out []model.MealRecord
	for _, rec := range s.records {
		if rec.UserID != principal {
			continue
		}
		if f.Since != nil && rec.CreatedAt.Before(*f.Since) {
			continue
		}
		if f.Until != nil && !rec.CreatedAt.Before(*f.Until) {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discard{}, nil))
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func newTestServer() (*Server, *memStore) {
	store := newMemStore()
	svc := meals.NewService(store, testLogger())
	resolver := resolve.New(store, svc, testLogger(), 0, 0)
	return New(svc, resolver, testLogger()), store
}

func userCtx() context.Context {
	return ctxutil.WithPrincipal(context.Background(), "user-1")
}

func callRequest(name string, args map[string]any) mcplib.CallToolRequest {
	return mcplib.CallToolRequest{
		Params: mcplib.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

// toolText extracts the first TextContent text from a CallToolResult.
func toolText(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcplib.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestHandleLogRequiresAuth(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleLog(context.Background(), callRequest("meal_log", map[string]any{
		"name": "Oatmeal", "calories": 300.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Equal(t, "not authenticated", toolText(t, result))
}

func TestHandleLog(t *testing.T) {
	s, store := newTestServer()

	result, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Chicken Burrito", "calories": 480.0, "protein": 32.0,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, "Added Chicken Burrito with 480 calories", toolText(t, result))
	require.Len(t, store.records, 1)
	assert.Equal(t, "user-1", store.records[1].UserID)
}

func TestHandleLogValidation(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"calories": 300.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleList(t *testing.T) {
	s, _ := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Oatmeal", "calories": 300.0,
	}))
	require.NoError(t, err)

	result, err := s.handleList(userCtx(), callRequest("meal_list", nil))
	require.NoError(t, err)
	text := toolText(t, result)
	assert.Contains(t, text, "Today's meals:")
	assert.Contains(t, text, "Oatmeal")
}

func TestHandleListEmpty(t *testing.T) {
	s, _ := newTestServer()

	result, err := s.handleList(userCtx(), callRequest("meal_list", nil))
	require.NoError(t, err)
	assert.Equal(t, "No meals found for today", toolText(t, result))
}

func TestHandleFind(t *testing.T) {
	s, _ := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Chicken Burrito", "calories": 480.0,
	}))
	require.NoError(t, err)

	result, err := s.handleFind(userCtx(), callRequest("meal_find", map[string]any{
		"name": "burito",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, toolText(t, result), "Chicken Burrito")
}

func TestHandleDeleteByID(t *testing.T) {
	s, store := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Oatmeal", "calories": 300.0,
	}))
	require.NoError(t, err)

	result, err := s.handleDelete(userCtx(), callRequest("meal_delete", map[string]any{
		"meal_id": 1.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Deleted meal with ID 1", toolText(t, result))
	assert.Empty(t, store.records)
}

func TestHandleDeleteByName(t *testing.T) {
	s, store := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Chicken Burrito", "calories": 480.0,
	}))
	require.NoError(t, err)

	result, err := s.handleDelete(userCtx(), callRequest("meal_delete", map[string]any{
		"name": "chicken burrito",
	}))
	require.NoError(t, err)
	assert.Equal(t, "Deleted meal with ID 1", toolText(t, result))
	assert.Empty(t, store.records)
}

func TestHandleModifyByID(t *testing.T) {
	s, store := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Oatmeal", "calories": 300.0,
	}))
	require.NoError(t, err)

	result, err := s.handleModify(userCtx(), callRequest("meal_modify", map[string]any{
		"meal_id": 1.0, "calories": 350.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Modified meal with ID 1", toolText(t, result))
	assert.Equal(t, 350.0, *store.records[1].Calories)
}

func TestHandleModifyByName(t *testing.T) {
	s, store := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Chicken Burrito", "calories": 480.0,
	}))
	require.NoError(t, err)

	result, err := s.handleModify(userCtx(), callRequest("meal_modify", map[string]any{
		"name": "burrito", "new_name": "Chicken Burrito XL", "calories": 520.0,
	}))
	require.NoError(t, err)
	assert.Equal(t, "Modified meal with ID 1", toolText(t, result))
	assert.Equal(t, "Chicken Burrito XL", store.records[1].Name)
	assert.Equal(t, 520.0, *store.records[1].Calories)
}

func TestHandleDeleteScopedToPrincipal(t *testing.T) {
	s, store := newTestServer()

	_, err := s.handleLog(userCtx(), callRequest("meal_log", map[string]any{
		"name": "Oatmeal", "calories": 300.0,
	}))
	require.NoError(t, err)

	otherCtx := ctxutil.WithPrincipal(context.Background(), "user-2")
	result, err := s.handleDelete(otherCtx, callRequest("meal_delete", map[string]any{
		"meal_id": 1.0,
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Len(t, store.records, 1)
}
