package forecasts

import "time"

// Forecast statuses.
const (
	StatusPlanned   = "PLANNED"
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

// Table is the audited table name.
const Table = "delivery_forecasts"

const dateLayout = "2006-01-02"

// Forecast is a planned delivery for a party on a given day.
type Forecast struct {
	ID           int64     `json:"id"`
	PartyID      int64     `json:"party_id"`
	VehiclePlate string    `json:"vehicle_plate"`
	ScheduledFor time.Time `json:"scheduled_for"`
	Route        string    `json:"route"`
	Quantity     float64   `json:"quantity"`
	Status       string    `json:"status"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (f Forecast) sameFields(o Forecast) bool {
	return f.PartyID == o.PartyID &&
		f.VehiclePlate == o.VehiclePlate &&
		f.ScheduledFor.Equal(o.ScheduledFor) &&
		f.Route == o.Route &&
		f.Quantity == o.Quantity &&
		f.Status == o.Status &&
		f.Notes == o.Notes
}

// Input carries the editable fields of a forecast.
type Input struct {
	PartyID      int64   `json:"party_id" validate:"required,gt=0"`
	VehiclePlate string  `json:"vehicle_plate" validate:"omitempty,max=16"`
	ScheduledFor string  `json:"scheduled_for" validate:"required,datetime=2006-01-02"`
	Route        string  `json:"route" validate:"omitempty,max=200"`
	Quantity     float64 `json:"quantity" validate:"gte=0"`
	Status       string  `json:"status" validate:"omitempty,oneof=PLANNED CONFIRMED CANCELLED"`
	Notes        string  `json:"notes" validate:"omitempty,max=1000"`
}

// Window selects forecasts scheduled in [From, To].
type Window struct {
	From time.Time
	To   time.Time
}
