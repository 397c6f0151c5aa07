package api

import (
	"net/http"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/driver"
)

// addDriversRequest carries either a CSV roster or one manual entry.
type addDriversRequest struct {
	CSVData     string `json:"csvData"`
	Replace     bool   `json:"replace"`
	Name        string `json:"name"`
	PhoneNumber string `json:"phone_number"`
	Email       string `json:"email"`
}

type driversResponse struct {
	Success bool            `json:"success"`
	Drivers []driver.Driver `json:"drivers"`
	Added   int             `json:"added"`
}

type driverResponse struct {
	Success bool          `json:"success"`
	Driver  driver.Driver `json:"driver"`
}

func (server *Server) listDrivers(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, server.DriverService.List())
}

func (server *Server) addDrivers(w http.ResponseWriter, r *http.Request) {
	var req addDriversRequest

	err := decode(r, &req)
	if err != nil {
		writeError(w, err)
		return
	}

	if strings.TrimSpace(req.CSVData) == "" {
		added, err := server.DriverService.Add(r.Context(), req.Name, req.PhoneNumber, req.Email)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, driverResponse{Success: true, Driver: added})

		return
	}

	added, err := server.DriverService.Import(r.Context(), strings.NewReader(req.CSVData), req.Replace)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, driversResponse{
		Success: true,
		Drivers: server.DriverService.List(),
		Added:   len(added),
	})
}
