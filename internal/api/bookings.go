package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"busticket/internal/domain"
	"busticket/internal/export"
	"busticket/internal/models"
	"busticket/internal/payment"
	"busticket/internal/service"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type seatRequest struct {
	SeatNumber string `json:"seatNumber" binding:"required"`
}

type passengerRequest struct {
	Name  string `json:"name" binding:"required,min=2"`
	Email string `json:"email" binding:"required,email"`
	Phone string `json:"phone" binding:"required,lkphone"`
}

type createBookingRequest struct {
	VehicleID        string           `json:"vehicleId" binding:"required"`
	TravelDate       string           `json:"travelDate" binding:"required"`
	Seats            []seatRequest    `json:"seats" binding:"required,min=1,dive"`
	PassengerDetails passengerRequest `json:"passengerDetails"`
	PaymentMethod    string           `json:"paymentMethod" binding:"required,oneof=online cash"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" binding:"required"`
	PaymentID string `json:"razorpay_payment_id" binding:"required"`
	Signature string `json:"razorpay_signature" binding:"required"`
	BookingID string `json:"bookingId" binding:"required"`
}

type retryPaymentRequest struct {
	PaymentMethod string `json:"paymentMethod" binding:"required,oneof=online cash"`
}

type bookingPayload struct {
	Booking      *models.BookingDetails `json:"booking"`
	PaymentOrder *models.CheckoutOrder  `json:"onlinePaymentOrder,omitempty"`
}

func payloadOf(res *service.BookingResult) bookingPayload {
	details := &models.BookingDetails{Booking: res.Booking}
	if res.Vehicle != nil {
		summary := res.Vehicle.Summary()
		details.Vehicle = &summary
	}
	return bookingPayload{Booking: details, PaymentOrder: res.Checkout}
}

func (s *HTTPServer) handleCreateBooking(c *gin.Context) {
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, bindError(err))
		return
	}

	travelDate, err := models.ParseTravelDate(req.TravelDate, s.loc)
	if err != nil {
		s.fail(c, domain.InvalidField("travelDate", err.Error()))
		return
	}
	seats := make([]string, 0, len(req.Seats))
	for _, seat := range req.Seats {
		seats = append(seats, seat.SeatNumber)
	}

	res, err := s.bookings.CreateBooking(c.Request.Context(), service.CreateBookingInput{
		VehicleID:  req.VehicleID,
		TravelDate: travelDate,
		Seats:      seats,
		Passenger: models.PassengerDetails{
			Name:  req.PassengerDetails.Name,
			Email: req.PassengerDetails.Email,
			Phone: req.PassengerDetails.Phone,
		},
		PaymentMethod: models.PaymentMethod(req.PaymentMethod),
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Booking created successfully", payloadOf(res))
}

func (s *HTTPServer) handleRetryPayment(c *gin.Context) {
	var req retryPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, bindError(err))
		return
	}
	res, err := s.bookings.RetryPayment(c.Request.Context(), c.Param("id"), models.PaymentMethod(req.PaymentMethod))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment method updated", payloadOf(res))
}

func (s *HTTPServer) handleVerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, bindError(err))
		return
	}
	booking, err := s.payments.VerifyCallback(c.Request.Context(), service.VerifyPaymentInput{
		BookingID: req.BookingID,
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment verified successfully", booking)
}

// handlePayHereNotify receives the gateway's form-encoded server callback.
func (s *HTTPServer) handlePayHereNotify(c *gin.Context) {
	var n payment.Notification
	if err := c.ShouldBind(&n); err != nil {
		s.fail(c, bindError(err))
		return
	}
	if _, err := s.payments.HandleNotification(c.Request.Context(), n); err != nil {
		// A declined payment is reported with the gateway's own status message.
		var verr *domain.ValidationError
		if errors.As(err, &verr) && len(verr.Fields) == 1 && verr.Fields[0].Field == "status_code" {
			c.AbortWithStatusJSON(http.StatusBadRequest, envelope{Message: verr.Fields[0].Message})
			return
		}
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Payment verified", nil)
}

func (s *HTTPServer) handleGetByTicket(c *gin.Context) {
	details, err := s.bookings.GetBookingByTicket(c.Request.Context(), c.Param("ticketNumber"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", details)
}

func (s *HTTPServer) handleTicketQR(c *gin.Context) {
	details, err := s.bookings.GetBookingByTicket(c.Request.Context(), c.Param("ticketNumber"))
	if err != nil {
		s.fail(c, err)
		return
	}
	png, err := export.TicketQR(details.Booking)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

func (s *HTTPServer) handleTicketPDF(c *gin.Context) {
	details, err := s.bookings.GetBookingByTicket(c.Request.Context(), c.Param("ticketNumber"))
	if err != nil {
		s.fail(c, err)
		return
	}
	pdf, err := export.TicketPDF(details, s.currency)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, details.TicketNumber))
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *HTTPServer) handleCancelBooking(c *gin.Context) {
	booking, err := s.bookings.CancelBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Booking cancelled successfully", booking)
}

func (s *HTTPServer) handleGetBooking(c *gin.Context) {
	details, err := s.bookings.GetBooking(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", details)
}

func bookingFilterQuery(c *gin.Context) models.BookingFilter {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return models.BookingFilter{
		Status:        models.BookingStatus(strings.ToLower(strings.TrimSpace(c.Query("status")))),
		PaymentStatus: models.PaymentStatus(strings.ToLower(strings.TrimSpace(c.Query("paymentStatus")))),
		Page:          page,
		Limit:         limit,
	}
}

func (s *HTTPServer) handleListBookings(c *gin.Context) {
	page, err := s.bookings.ListBookings(c.Request.Context(), bookingFilterQuery(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	bookings := page.Bookings
	if bookings == nil {
		bookings = []*models.Booking{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success":     true,
		"count":       len(bookings),
		"total":       page.Total,
		"totalPages":  page.TotalPages,
		"currentPage": page.CurrentPage,
		"data":        bookings,
	})
}

func (s *HTTPServer) handleStatistics(c *gin.Context) {
	stats, err := s.bookings.GetStatistics(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", stats)
}

// handleExportBookings streams the filtered bookings as a spreadsheet.
func (s *HTTPServer) handleExportBookings(c *gin.Context) {
	ctx := c.Request.Context()
	bookings, err := s.bookings.AllBookings(ctx, bookingFilterQuery(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	listings, err := s.vehicles.ListVehicles(ctx, models.VehicleFilter{IncludeInactive: true}, nil)
	if err != nil {
		s.fail(c, err)
		return
	}
	numbers := make(map[string]string, len(listings))
	for _, l := range listings {
		numbers[l.ID] = l.Number
	}

	data, err := export.BookingsXLSX(bookings, numbers)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="bookings.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
