package payment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"busticket/internal/config"
	"busticket/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignatureVerifier(t *testing.T) {
	v := NewSignatureVerifier("S")
	proof := v.Sign("O", "P")

	assert.Len(t, proof, 64)
	assert.True(t, v.Verify("O", "P", proof))
	assert.False(t, v.Verify("O", "P2", proof))

	for i := range proof {
		mutated := []byte(proof)
		if mutated[i] == 'a' {
			mutated[i] = 'b'
		} else {
			mutated[i] = 'a'
		}
		assert.False(t, v.Verify("O", "P", string(mutated)), "position %d", i)
	}

	assert.False(t, NewSignatureVerifier("").Verify("O", "P", proof))
}

func TestCheckoutHash(t *testing.T) {
	// md5("") is well known; the hash concatenates with no separators.
	assert.Equal(t, "d41d8cd98f00b204e9800998ecf8427e", md5Hex(""))
	assert.Equal(t, md5Hex("sBKT1150000LKR"), CheckoutHash("s", "BKT1", 150000, "LKR"))
}

func TestNotifySignature(t *testing.T) {
	n := Notification{
		MerchantID: "1211149",
		OrderID:    "BKTX",
		Amount:     "1500.00",
		Currency:   "LKR",
		StatusCode: StatusSuccess,
	}
	n.MD5Sig = NotifySignature("secret", n)

	assert.Equal(t, strings.ToUpper(n.MD5Sig), n.MD5Sig)
	assert.True(t, VerifyNotification("secret", n))
	assert.True(t, n.Succeeded())

	tampered := n
	tampered.Amount = "1.00"
	assert.False(t, VerifyNotification("secret", tampered))

	unsigned := n
	unsigned.MD5Sig = ""
	assert.False(t, VerifyNotification("secret", unsigned))
	assert.True(t, VerifyNotification("", unsigned))
	assert.True(t, VerifyNotification("", tampered))
}

func newTestBooking() *models.Booking {
	return &models.Booking{
		ID:           "b1",
		TicketNumber: "BKTTEST",
		SeatCount:    2,
		TotalFare:    3000.5,
		Passenger:    models.PassengerDetails{Name: "Nimal Perera Silva", Email: "n@example.com", Phone: "0771234567"},
	}
}

func TestPayHereClient_CreateCheckout(t *testing.T) {
	var got checkoutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"data":{"payment_url":"https://pay.example/abc"}}`))
	}))
	defer srv.Close()

	logger := zerolog.New(io.Discard)
	cfg := config.PayHereConfig{MerchantID: "M1", MerchantSecret: "sec", CheckoutURL: srv.URL}
	client := NewPayHereClient(cfg, "LKR", &logger)

	order, err := client.CreateCheckout(context.Background(), newTestBooking())
	require.NoError(t, err)

	assert.Equal(t, "https://pay.example/abc", order.PaymentURL)
	assert.Equal(t, "BKTTEST", order.OrderID)
	assert.Equal(t, GatewayPayHere, order.Gateway)

	assert.Equal(t, int64(300050), got.Amount)
	assert.Equal(t, "Nimal", got.FirstName)
	assert.Equal(t, "Perera Silva", got.LastName)
	assert.Equal(t, CheckoutHash("sec", "BKTTEST", 300050, "LKR"), got.Hash)
}

func TestPayHereClient_Errors(t *testing.T) {
	logger := zerolog.New(io.Discard)

	t.Run("HTTPStatus", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewPayHereClient(config.PayHereConfig{CheckoutURL: srv.URL}, "LKR", &logger)
		_, err := client.CreateCheckout(context.Background(), newTestBooking())
		assert.ErrorContains(t, err, "http 502")
	})

	t.Run("EmptyURL", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"data":{}}`))
		}))
		defer srv.Close()

		client := NewPayHereClient(config.PayHereConfig{CheckoutURL: srv.URL}, "LKR", &logger)
		_, err := client.CreateCheckout(context.Background(), newTestBooking())
		assert.ErrorContains(t, err, "empty payment url")
	})

	t.Run("Timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		client := NewPayHereClient(config.PayHereConfig{CheckoutURL: srv.URL, Timeout: 20 * time.Millisecond}, "LKR", &logger)
		_, err := client.CreateCheckout(context.Background(), newTestBooking())
		assert.Error(t, err)
	})
}
