package main

import (
	"math"
	"net/http"
	"sort"
	"time"
)

// assumedItemValue is the flat per-item price used for savings estimates.
const assumedItemValue = 5.0

type wasteReport struct {
	Month         string   `json:"month"`
	TotalItems    int      `json:"totalItems"`
	ExpiredItems  int      `json:"expiredItems"`
	ConsumedItems int      `json:"consumedItems"`
	WasteScore    float64  `json:"wasteScore"`
	Savings       float64  `json:"savings"`
	TotalValue    *float64 `json:"totalValue,omitempty"`
}

type categoryStats struct {
	Category      string  `json:"category"`
	TotalItems    int     `json:"totalItems"`
	ExpiredItems  int     `json:"expiredItems"`
	ConsumedItems int     `json:"consumedItems"`
	WasteScore    float64 `json:"wasteScore"`
}

type expiryGroup struct {
	DaysUntilExpiration int         `json:"daysUntilExpiration"`
	ItemCount           int         `json:"itemCount"`
	Items               []*FoodItem `json:"items"`
}

type expiringSoon struct {
	TotalExpiring         int           `json:"totalExpiring"`
	DaysThreshold         int           `json:"daysThreshold"`
	ByDaysUntilExpiration []expiryGroup `json:"byDaysUntilExpiration"`
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }

func wasteScore(expired, total int) float64 {
	if total == 0 {
		return 0
	}
	return round1(float64(expired) / float64(total) * 100)
}

// monthReport summarizes the items created in the month starting at start.
// An item counts as wasted when it expired before now.
func (a *App) monthReport(r *http.Request, start time.Time) (*wasteReport, error) {
	items, err := a.Store.ListFoodItemsCreatedBetween(r.Context(), subjectOf(r), start, start.AddDate(0, 1, 0))
	if err != nil {
		return nil, err
	}
	now := a.now()
	rep := &wasteReport{Month: start.Format("2006-01"), TotalItems: len(items)}
	for _, it := range items {
		if it.ExpirationDate.Before(now) {
			rep.ExpiredItems++
		}
	}
	rep.ConsumedItems = rep.TotalItems - rep.ExpiredItems
	rep.WasteScore = wasteScore(rep.ExpiredItems, rep.TotalItems)
	rep.Savings = float64(rep.ExpiredItems) * assumedItemValue
	return rep, nil
}

func (a *App) HandleWasteReport(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid month format. Use YYYY-MM")
		return
	}
	rep, err := a.monthReport(r, start)
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "waste report failed", "error", err)
		writeInternal(w, "Failed to generate waste report")
		return
	}
	total := float64(rep.TotalItems) * assumedItemValue
	rep.TotalValue = &total
	writeSuccess(w, http.StatusOK, rep)
}

// HandleWasteHistory returns one report per month for the last months
// months, newest first.
func (a *App) HandleWasteHistory(w http.ResponseWriter, r *http.Request) {
	months, err := intQuery(r, "months", 6, 1, 12)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	now := a.now().UTC()
	current := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	reports := make([]*wasteReport, 0, months)
	for i := 0; i < months; i++ {
		rep, err := a.monthReport(r, current.AddDate(0, -i, 0))
		if err != nil {
			a.Logger.ErrorContext(r.Context(), "waste history failed", "error", err)
			writeInternal(w, "Failed to get waste history")
			return
		}
		reports = append(reports, rep)
	}
	writeSuccess(w, http.StatusOK, reports)
}

func (a *App) HandleCategoryBreakdown(w http.ResponseWriter, r *http.Request) {
	items, err := a.Store.ListFoodItems(r.Context(), subjectOf(r), FoodFilter{})
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "category breakdown failed", "error", err)
		writeInternal(w, "Failed to get category breakdown")
		return
	}
	now := a.now()
	byCategory := map[string]*categoryStats{}
	for _, it := range items {
		s, ok := byCategory[it.Category]
		if !ok {
			s = &categoryStats{Category: it.Category}
			byCategory[it.Category] = s
		}
		s.TotalItems++
		if it.ExpirationDate.Before(now) {
			s.ExpiredItems++
		} else {
			s.ConsumedItems++
		}
	}
	out := make([]categoryStats, 0, len(byCategory))
	for _, s := range byCategory {
		s.WasteScore = wasteScore(s.ExpiredItems, s.TotalItems)
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].WasteScore != out[j].WasteScore {
			return out[i].WasteScore > out[j].WasteScore
		}
		return out[i].Category < out[j].Category
	})
	writeSuccess(w, http.StatusOK, out)
}

// HandleExpiringSoon groups items expiring within days by whole days left.
// Expired items land in negative groups.
func (a *App) HandleExpiringSoon(w http.ResponseWriter, r *http.Request) {
	days, err := intQuery(r, "days", 7, 1, 30)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	now := a.now().UTC()
	items, err := a.Store.ListFoodItemsExpiringBefore(r.Context(), subjectOf(r), now.AddDate(0, 0, days))
	if err != nil {
		a.Logger.ErrorContext(r.Context(), "expiring soon failed", "error", err)
		writeInternal(w, "Failed to get expiring items analytics")
		return
	}
	groups := map[int]*expiryGroup{}
	for _, it := range items {
		left := int(math.Floor(it.ExpirationDate.Sub(now).Hours() / 24))
		g, ok := groups[left]
		if !ok {
			g = &expiryGroup{DaysUntilExpiration: left}
			groups[left] = g
		}
		g.Items = append(g.Items, it)
		g.ItemCount++
	}
	res := expiringSoon{
		TotalExpiring:         len(items),
		DaysThreshold:         days,
		ByDaysUntilExpiration: make([]expiryGroup, 0, len(groups)),
	}
	for _, g := range groups {
		res.ByDaysUntilExpiration = append(res.ByDaysUntilExpiration, *g)
	}
	sort.Slice(res.ByDaysUntilExpiration, func(i, j int) bool {
		return res.ByDaysUntilExpiration[i].DaysUntilExpiration < res.ByDaysUntilExpiration[j].DaysUntilExpiration
	})
	writeSuccess(w, http.StatusOK, res)
}
