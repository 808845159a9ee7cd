package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-intake/pkg/intake"
)

func TestBackend_CreateAndGet(t *testing.T) {
	b := New()
	ctx := context.Background()

	record := intake.Record{"cidade": "Natal"}
	id, err := b.Create(ctx, "videos", record)
	require.NoError(t, err)
	assert.Equal(t, "1", id)

	// Stored copy is independent of the caller's map
	record["cidade"] = "Recife"

	got, err := b.Get(ctx, "videos", id)
	require.NoError(t, err)
	assert.Equal(t, "Natal", got.String("cidade"))
	assert.Equal(t, id, got.ID())
	assert.Equal(t, 1, b.Creates())

	_, err = b.Get(ctx, "pet_perdido", id)
	assert.ErrorIs(t, err, intake.ErrRecordNotFound)
}

func TestBackend_List(t *testing.T) {
	b := New()
	ctx := context.Background()

	_, err := b.Create(ctx, "videos", intake.Record{intake.FieldDatetime: "2024-01-01T00:00:00.000000Z"})
	require.NoError(t, err)
	second, err := b.Create(ctx, "videos", intake.Record{intake.FieldDatetime: "2024-01-03T00:00:00.000000Z"})
	require.NoError(t, err)
	_, err = b.Create(ctx, "videos", intake.Record{intake.FieldDatetime: "2024-01-02T00:00:00.000000Z", "descricao_ia": "feito"})
	require.NoError(t, err)

	all, err := b.List(ctx, "videos", intake.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	pending, err := b.List(ctx, "videos", intake.ListQuery{NullField: "descricao_ia"})
	require.NoError(t, err)
	assert.Len(t, pending, 2)

	newest, err := b.List(ctx, "videos", intake.ListQuery{Newest: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, second, newest[0].ID())
}

func TestBackend_Update(t *testing.T) {
	b := New()
	ctx := context.Background()

	id, err := b.Create(ctx, "videos", intake.Record{"problema": "buraco"})
	require.NoError(t, err)

	require.NoError(t, b.Update(ctx, "videos", id, intake.Record{"descricao_ia": "texto", intake.FieldID: "other"}))

	got, err := b.Get(ctx, "videos", id)
	require.NoError(t, err)
	assert.Equal(t, "texto", got.String("descricao_ia"))
	assert.Equal(t, "buraco", got.String("problema"))
	assert.Equal(t, id, got.ID())

	assert.ErrorIs(t, b.Update(ctx, "videos", "99", intake.Record{}), intake.ErrRecordNotFound)
}

func TestBackend_FailCreates(t *testing.T) {
	b := New()
	ctx := context.Background()

	b.FailCreates(errors.New("connection refused"))
	_, err := b.Create(ctx, "videos", intake.Record{})
	require.Error(t, err)
	assert.ErrorIs(t, err, intake.ErrBackend)
	assert.Equal(t, 0, b.Creates())

	b.FailCreates(nil)
	_, err = b.Create(ctx, "videos", intake.Record{})
	require.NoError(t, err)
	assert.Equal(t, 1, b.Creates())
}

func TestBackend_CanceledContext(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Create(ctx, "videos", intake.Record{})
	assert.ErrorIs(t, err, context.Canceled)
}
