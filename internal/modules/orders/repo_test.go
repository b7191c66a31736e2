package orders

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/viniciusmedieval/pix-portal-sub000/internal/testutil"
)

func newTestRepo(t *testing.T) *Repo {
	t.Helper()
	return NewRepo(testutil.OpenDB(t, &Order{}, &OrderEvent{}))
}

func createOrder(t *testing.T, r *Repo) Order {
	t.Helper()
	o, err := r.CreatePending(context.Background(), CreatePendingInput{
		ProductID:   "prod-1",
		AmountCents: 4990,
		Method:      MethodPix,
		Buyer:       Buyer{Name: " Ana Silva ", Email: "Ana@Example.com", CPF: "123.456.789-01"},
	})
	require.NoError(t, err)
	return o
}

func TestCreatePending(t *testing.T) {
	r := newTestRepo(t)
	o := createOrder(t, r)

	assert.NotEmpty(t, o.ID)
	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, "Ana Silva", o.Name)
	assert.Equal(t, "ana@example.com", o.Email)
	assert.Equal(t, "12345678901", o.CPF)
	assert.Nil(t, o.Phone)
	assert.Equal(t, int64(4990), o.AmountCents)
	assert.False(t, o.CreatedAt.IsZero())

	got, err := r.FindByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, MethodPix, got.PaymentMethod)
}

func TestCreatePendingRejectsIncompleteInput(t *testing.T) {
	r := newTestRepo(t)
	tests := []struct {
		name string
		in   CreatePendingInput
	}{
		{"no product", CreatePendingInput{AmountCents: 1, Method: MethodPix, Buyer: Buyer{Name: "a", Email: "a@b.c", CPF: "1"}}},
		{"zero amount", CreatePendingInput{ProductID: "p", Method: MethodPix, Buyer: Buyer{Name: "a", Email: "a@b.c", CPF: "1"}}},
		{"bad method", CreatePendingInput{ProductID: "p", AmountCents: 1, Method: "boleto", Buyer: Buyer{Name: "a", Email: "a@b.c", CPF: "1"}}},
		{"no buyer", CreatePendingInput{ProductID: "p", AmountCents: 1, Method: MethodCard}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.CreatePending(context.Background(), tt.in)
			assert.ErrorIs(t, err, ErrInvalidOrder)
		})
	}

	var count int64
	require.NoError(t, r.DB().Model(&Order{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestFindByIDNotFound(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateStatusIsMonotonic(t *testing.T) {
	terminals := []Status{StatusPaid, StatusDeclined, StatusExpired, StatusCanceled}

	for _, first := range terminals {
		t.Run(string(first), func(t *testing.T) {
			r := newTestRepo(t)
			ctx := context.Background()
			o := createOrder(t, r)

			updated, err := r.UpdateStatus(ctx, o.ID, first)
			require.NoError(t, err)
			assert.Equal(t, first, updated.Status)

			for _, next := range append([]Status{StatusPending}, terminals...) {
				_, err := r.UpdateStatus(ctx, o.ID, next)
				assert.ErrorIs(t, err, ErrInvalidTransition, "%s -> %s", first, next)
			}

			got, err := r.FindByID(ctx, o.ID)
			require.NoError(t, err)
			assert.Equal(t, first, got.Status)
		})
	}
}

func TestUpdateStatusRejectsPendingTarget(t *testing.T) {
	r := newTestRepo(t)
	o := createOrder(t, r)
	_, err := r.UpdateStatus(context.Background(), o.ID, StatusPending)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestUpdateStatusWritesEvent(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	o := createOrder(t, r)

	_, err := r.UpdateStatus(ctx, o.ID, StatusPaid)
	require.NoError(t, err)

	_, events, err := r.AdminGetDetail(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, StatusPending, events[0].FromStatus)
	assert.Equal(t, StatusPaid, events[0].ToStatus)
	assert.Equal(t, "system", events[0].Actor)
}

func TestTimestampsSurviveReload(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	o := createOrder(t, r)

	got, err := r.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.False(t, got.CreatedAt.IsZero())
	assert.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Millisecond)

	_, err = r.UpdateStatus(ctx, o.ID, StatusPaid)
	require.NoError(t, err)
	_, events, err := r.AdminGetDetail(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.WithinDuration(t, time.Now(), events[0].CreatedAt, time.Minute)
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	r := newTestRepo(t)
	_, err := r.UpdateStatus(context.Background(), "missing", StatusPaid)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSetPaymentMethod(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	o := createOrder(t, r)

	require.NoError(t, r.SetPaymentMethod(ctx, o.ID, MethodCard))
	got, err := r.FindByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, MethodCard, got.PaymentMethod)
	assert.Equal(t, o.AmountCents, got.AmountCents)

	_, err = r.UpdateStatus(ctx, o.ID, StatusDeclined)
	require.NoError(t, err)
	assert.ErrorIs(t, r.SetPaymentMethod(ctx, o.ID, MethodPix), ErrNotActionable)
}

func TestAdminList(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()
	a := createOrder(t, r)
	createOrder(t, r)
	_, err := r.UpdateStatus(ctx, a.ID, StatusPaid)
	require.NoError(t, err)

	res, err := r.AdminList(ctx, AdminListParams{Status: StatusPaid})
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Total)
	require.Len(t, res.Items, 1)
	assert.Equal(t, a.ID, res.Items[0].ID)

	res, err = r.AdminList(ctx, AdminListParams{Q: "12345678901"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Equal(t, 1, res.Page)
	assert.Equal(t, 30, res.PageSize)

	res, err = r.AdminList(ctx, AdminListParams{Method: MethodPix, PageSize: 1, Page: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Total)
	assert.Len(t, res.Items, 1)

	_, err = r.AdminList(ctx, AdminListParams{Status: "refunded"})
	assert.ErrorIs(t, err, ErrInvalidOrder)
}
