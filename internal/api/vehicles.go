package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"busticket/internal/domain"
	"busticket/internal/models"

	"github.com/gin-gonic/gin"
)

// travelDateQuery parses ?date=; an absent value yields nil unless required.
func (s *HTTPServer) travelDateQuery(c *gin.Context, required bool) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query("date"))
	if raw == "" {
		if required {
			return nil, domain.InvalidField("date", "date query parameter is required")
		}
		return nil, nil
	}
	day, err := models.ParseTravelDate(raw, s.loc)
	if err != nil {
		return nil, domain.InvalidField("date", err.Error())
	}
	return &day, nil
}

func (s *HTTPServer) handleListVehicles(c *gin.Context) {
	date, err := s.travelDateQuery(c, false)
	if err != nil {
		s.fail(c, err)
		return
	}

	filter := models.VehicleFilter{
		From: c.Query("from"),
		To:   c.Query("to"),
	}
	if inactive, _ := strconv.ParseBool(c.Query("includeInactive")); inactive {
		// Inactive vehicles are only listed for authenticated admins.
		if _, err := s.authenticate(c); err != nil {
			s.fail(c, err)
			return
		}
		filter.IncludeInactive = true
	}

	listings, err := s.vehicles.ListVehicles(c.Request.Context(), filter, date)
	if err != nil {
		s.fail(c, err)
		return
	}
	if listings == nil {
		listings = []*models.VehicleListing{}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(listings),
		"data":    listings,
	})
}

func (s *HTTPServer) handleGetVehicle(c *gin.Context) {
	vehicle, err := s.vehicles.GetVehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", vehicle)
}

func (s *HTTPServer) handleSeatMap(c *gin.Context) {
	date, err := s.travelDateQuery(c, true)
	if err != nil {
		s.fail(c, err)
		return
	}
	seatMap, err := s.vehicles.SeatMap(c.Request.Context(), c.Param("id"), *date)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "", seatMap)
}

// vehicleRequest is the admin vehicle body. IsActive stays nil when omitted.
type vehicleRequest struct {
	models.Vehicle
	IsActive *bool `json:"isActive"`
}

func (s *HTTPServer) bindVehicle(c *gin.Context) (*vehicleRequest, bool) {
	var req vehicleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, bindError(err))
		return nil, false
	}
	return &req, true
}

func (s *HTTPServer) handleCreateVehicle(c *gin.Context) {
	req, ok := s.bindVehicle(c)
	if !ok {
		return
	}
	created, err := s.vehicles.CreateVehicle(c.Request.Context(), &req.Vehicle)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusCreated, "Vehicle created successfully", created)
}

func (s *HTTPServer) handleUpdateVehicle(c *gin.Context) {
	req, ok := s.bindVehicle(c)
	if !ok {
		return
	}
	updated, err := s.vehicles.UpdateVehicle(c.Request.Context(), c.Param("id"), &req.Vehicle, req.IsActive)
	if err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle updated successfully", updated)
}

func (s *HTTPServer) handleDeleteVehicle(c *gin.Context) {
	if err := s.vehicles.DeleteVehicle(c.Request.Context(), c.Param("id")); err != nil {
		s.fail(c, err)
		return
	}
	respond(c, http.StatusOK, "Vehicle deleted successfully", nil)
}
