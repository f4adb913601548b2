package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder(t *testing.T) {
	at := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

	order, err := NewOrder("o-1", []string{"a", "b"}, at)
	require.NoError(t, err)
	assert.Equal(t, "o-1", order.OrderID)
	assert.Equal(t, []string{"a", "b"}, order.Items)
	assert.Equal(t, at, order.SubmittedAt)

	_, err = NewOrder("o-2", nil, at)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = NewOrder("o-3", []string{"a", " "}, at)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestOrderWireFormat(t *testing.T) {
	order, err := NewOrder("o-1", []string{"a"}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, err)

	data, err := json.Marshal(order)
	require.NoError(t, err)
	assert.JSONEq(t, `{"orderId":"o-1","items":["a"],"submittedAt":"2026-01-02T03:04:05Z"}`, string(data))
}

func TestDecodeOrder(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "valid", payload: `{"orderId":"o-1","items":["a","b"],"submittedAt":"2026-01-02T03:04:05Z"}`},
		{name: "without timestamp", payload: `{"orderId":"o-1","items":["a"]}`},
		{name: "not json", payload: `order`, wantErr: true},
		{name: "missing order id", payload: `{"items":["a"]}`, wantErr: true},
		{name: "missing items", payload: `{"orderId":"o-1"}`, wantErr: true},
		{name: "empty items", payload: `{"orderId":"o-1","items":[]}`, wantErr: true},
		{name: "items wrong type", payload: `{"orderId":"o-1","items":"a"}`, wantErr: true},
		{name: "blank item", payload: `{"orderId":"o-1","items":["a","  "]}`, wantErr: true},
		{name: "empty item", payload: `{"orderId":"o-1","items":[""]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			order, err := DecodeOrder([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o-1", order.OrderID)
		})
	}
}

func TestDecodeReservationResult(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
	}{
		{name: "reserved", payload: `{"orderId":"o-1","status":"RESERVED","message":"ok","itemCount":3,"decidedAt":"2026-01-02T03:04:05Z"}`},
		{name: "failed with zero items", payload: `{"orderId":"o-1","status":"FAILED","message":"no","itemCount":0,"decidedAt":"2026-01-02T03:04:05Z"}`},
		{name: "empty message", payload: `{"orderId":"o-1","status":"FAILED","message":"","itemCount":1,"decidedAt":"2026-01-02T03:04:05Z"}`},
		{name: "missing message", payload: `{"orderId":"o-1","status":"FAILED","itemCount":1,"decidedAt":"2026-01-02T03:04:05Z"}`, wantErr: true},
		{name: "missing decidedAt", payload: `{"orderId":"o-1","status":"FAILED","message":"no","itemCount":1}`, wantErr: true},
		{name: "unknown status", payload: `{"orderId":"o-1","status":"RESERVADO","itemCount":1}`, wantErr: true},
		{name: "missing item count", payload: `{"orderId":"o-1","status":"FAILED"}`, wantErr: true},
		{name: "negative item count", payload: `{"orderId":"o-1","status":"FAILED","itemCount":-1}`, wantErr: true},
		{name: "missing order id", payload: `{"status":"FAILED","itemCount":1}`, wantErr: true},
		{name: "truncated", payload: `{"orderId":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecodeReservationResult([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedRecord)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "o-1", result.OrderID)
			assert.True(t, result.Status.Valid())
		})
	}
}

func TestReservationResult_Notification(t *testing.T) {
	at := time.Now().UTC()
	result := ReservationResult{OrderID: "o-1", Status: StatusFailed, Message: "m", ItemCount: 6, DecidedAt: at}

	n := result.Notification()
	assert.Equal(t, Notification{OrderID: "o-1", Status: StatusFailed, Message: "m", ItemCount: 6, DecidedAt: at}, n)
}
