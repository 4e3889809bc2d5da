package model

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ----------------------------------------------------------------------
// User endpoints
// ----------------------------------------------------------------------

// LoginRequest is the body of POST /user/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the body of POST /user/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse is returned by login and refresh-token.
type TokenResponse struct {
	Token string `json:"token"`
}

// User is the authenticated account as returned by GET /user/me.
type User struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// ----------------------------------------------------------------------
// Products (ledger entries)
// ----------------------------------------------------------------------

// Product is an inventory item booked as income (Category true) or expense.
type Product struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Quantity    int             `json:"quantity"`
	Price       float64         `json:"price"`
	Date        string          `json:"date"`
	Category    bool            `json:"category"`
	Image       json.RawMessage `json:"image,omitempty"`
	CreatedAt   string          `json:"createdAt"`
	UpdatedAt   string          `json:"updatedAt"`
}

// ProductInput is what create and update send. Date is DD/MM/YYYY.
type ProductInput struct {
	Name        string  `json:"name"`
	Description string  `json:"description,omitempty"`
	Quantity    int     `json:"quantity"`
	Price       float64 `json:"price"`
	Date        string  `json:"date"`
	Category    bool    `json:"category"`
}

// FormFields renders the input as multipart form values, omitting an empty description.
func (p ProductInput) FormFields() map[string]string {
	fields := map[string]string{
		"name":     p.Name,
		"quantity": strconv.Itoa(p.Quantity),
		"price":    strconv.FormatFloat(p.Price, 'f', -1, 64),
		"date":     p.Date,
		"category": strconv.FormatBool(p.Category),
	}
	if p.Description != "" {
		fields["description"] = p.Description
	}
	return fields
}

// CategoryLabel returns the label the backend UI uses for a category flag.
func CategoryLabel(income bool) string {
	if income {
		return "Entrada"
	}
	return "Saída"
}

// Balance summarises a product list.
type Balance struct {
	Income     float64
	Expense    float64
	Total      float64
	Count      int
	LastRecord *Product
}

// ----------------------------------------------------------------------
// Wire dates
// ----------------------------------------------------------------------

const (
	apiDateLayout = "02/01/2006"
	isoDateLayout = "2006-01-02"
)

// FormatAPIDate converts an ISO date (YYYY-MM-DD, optionally with a time part)
// into the DD/MM/YYYY form the backend expects.
func FormatAPIDate(iso string) (string, error) {
	d, _, _ := strings.Cut(iso, "T")
	t, err := time.Parse(isoDateLayout, d)
	if err != nil {
		return "", fmt.Errorf("invalid date %q: %w", iso, err)
	}
	return t.Format(apiDateLayout), nil
}

// ParseAPIDate accepts ISO, YYYY/MM/DD and DD/MM/YYYY dates and returns the day.
func ParseAPIDate(s string) (time.Time, error) {
	if strings.Contains(s, "-") {
		d, _, _ := strings.Cut(s, "T")
		return time.Parse(isoDateLayout, d)
	}

	parts := strings.Split(s, "/")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("unrecognised date %q", s)
	}
	var year, month, day string
	if len(parts[0]) == 4 {
		year, month, day = parts[0], parts[1], parts[2]
	} else {
		day, month, year = parts[0], parts[1], parts[2]
	}
	return time.Parse(isoDateLayout, fmt.Sprintf("%s-%s-%s", year, pad2(month), pad2(day)))
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}
