package model

// Core domain types shared by the builder, scheduler, store and API.

// ValidationStatus is the feasibility outcome of a scheduled event.
type ValidationStatus string

const (
    StatusValid   ValidationStatus = "valid"
    StatusInvalid ValidationStatus = "invalid"
)

type Place struct {
    ID        string  `json:"_id"`
    Name      string  `json:"name,omitempty"`
    Category  string  `json:"category,omitempty"`
    Lat       float64 `json:"lat"`
    Lng       float64 `json:"lng"`
    VisitMin  int     `json:"visitMin,omitempty"`
    OpenTime  string  `json:"openTime,omitempty"`  // HH:MM
    CloseTime string  `json:"closeTime,omitempty"` // HH:MM
}

type PlaceInput struct {
    Name      string  `json:"name" validate:"required,max=200"`
    Category  string  `json:"category,omitempty" validate:"max=64"`
    Lat       float64 `json:"lat" validate:"gte=-90,lte=90"`
    Lng       float64 `json:"lng" validate:"gte=-180,lte=180"`
    VisitMin  int     `json:"visitMin,omitempty" validate:"gte=0,lte=1440"`
    OpenTime  string  `json:"openTime,omitempty" validate:"omitempty,hhmm"`
    CloseTime string  `json:"closeTime,omitempty" validate:"omitempty,hhmm"`
}

type Trip struct {
    ID        string    `json:"_id"`
    Name      string    `json:"name,omitempty"`
    StartDate string    `json:"startDate,omitempty"`
    Days      []TripDay `json:"days"`
    Version   int       `json:"version"`
    UpdatedAt string    `json:"updatedAt,omitempty"`
}

type TripInput struct {
    Name      string    `json:"name" validate:"required,max=200"`
    StartDate string    `json:"startDate,omitempty" validate:"omitempty,isodate"`
    Days      []TripDay `json:"days,omitempty" validate:"dive"`
}

type TripDay struct {
    DayIndex int         `json:"dayIndex" validate:"gte=0"`
    Date     string      `json:"date"`
    Events   []TripEvent `json:"events"`
}

type TripEvent struct {
    ID               string           `json:"_id,omitempty"`
    PlaceID          string           `json:"placeId"`
    Order            int              `json:"order"`
    StartTime        *string          `json:"startTime"`
    EndTime          *string          `json:"endTime"`
    TravelTimeMin    float64          `json:"travelTimeMin"`
    DistanceKm       float64          `json:"distanceKm"`
    ValidationStatus ValidationStatus `json:"validationStatus"`
    ValidationReason *string          `json:"validationReason"`
}
