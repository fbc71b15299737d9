package expedo

import (
	"time"

	"github.com/norseabelito-rgb/erp-cashflowsync-sub000/internal/courier"
)

// awbPayload is the wire shape the provider expects on /awb.
type awbPayload struct {
	Sender         awbParty `json:"sender"`
	Recipient      awbParty `json:"recipient"`
	Service        string   `json:"service"`
	Payment        string   `json:"payment"`
	Weight         float64  `json:"weight"`
	Packages       int      `json:"packages"`
	CashOnDelivery float64  `json:"cash_on_delivery"`
	DeclaredValue  float64  `json:"declared_value"`
	Observations   string   `json:"observations"`
}

type awbParty struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	County     string `json:"county"`
	City       string `json:"city"`
	Street     string `json:"street"`
	Number     string `json:"number"`
	PostalCode string `json:"postal_code"`
}

func buildAwbPayload(spec courier.AWBSpec) awbPayload {
	return awbPayload{
		Sender:         toAwbParty(spec.Sender),
		Recipient:      toAwbParty(spec.Recipient),
		Service:        spec.ServiceType,
		Payment:        spec.PaymentType,
		Weight:         spec.Weight,
		Packages:       spec.PackageCount,
		CashOnDelivery: spec.CashOnDelivery,
		DeclaredValue:  spec.DeclaredValue,
		Observations:   spec.Observations,
	}
}

func toAwbParty(p courier.Party) awbParty {
	return awbParty{
		Name:       p.Name,
		Phone:      courier.NormalizePhone(p.Phone),
		Email:      p.Email,
		County:     p.County,
		City:       p.City,
		Street:     p.Street,
		Number:     p.Number,
		PostalCode: p.PostalCode,
	}
}

// rawEvent tolerates the field-name drift between provider response
// variants; both code/eventCode and name/eventName appear in the wild.
type rawEvent struct {
	Code      string `json:"code"`
	EventCode string `json:"eventCode"`
	Name      string `json:"name"`
	EventName string `json:"eventName"`
	Location  string `json:"location"`
	Place     string `json:"place"`
	Date      string `json:"date"`
	EventDate string `json:"eventDate"`
}

type trackResponse struct {
	Events []rawEvent `json:"events"`
	Error  string     `json:"error"`
}

const eventTimeLayout = "2006-01-02 15:04:05"

func (r trackResponse) normalize() courier.TrackingResult {
	out := courier.TrackingResult{}
	for _, e := range r.Events {
		out.Events = append(out.Events, e.normalize())
	}
	return out
}

func (e rawEvent) normalize() courier.TrackingEvent {
	ev := courier.TrackingEvent{
		Code:     firstNonEmpty(e.Code, e.EventCode),
		Name:     firstNonEmpty(e.Name, e.EventName),
		Location: firstNonEmpty(e.Location, e.Place),
	}
	raw := firstNonEmpty(e.Date, e.EventDate)
	if raw != "" {
		if t, err := time.ParseInLocation(eventTimeLayout, raw, time.UTC); err == nil {
			ev.EventAt = t
		}
	}
	return ev
}

// rawNomenclatureEntry tolerates locality/city and street/name variants.
type rawNomenclatureEntry struct {
	County     string `json:"county"`
	Locality   string `json:"locality"`
	City       string `json:"city"`
	Street     string `json:"street"`
	Name       string `json:"name"`
	PostalCode string `json:"postal_code"`
	Zip        string `json:"zip"`
}

type nomenclatureResponse struct {
	Entries []rawNomenclatureEntry `json:"entries"`
	Error   string                 `json:"error"`
}

func (r nomenclatureResponse) normalize() []courier.NomenclatureEntry {
	out := make([]courier.NomenclatureEntry, 0, len(r.Entries))
	for _, e := range r.Entries {
		out = append(out, courier.NomenclatureEntry{
			County:     e.County,
			Locality:   firstNonEmpty(e.Locality, e.City),
			Street:     firstNonEmpty(e.Street, e.Name),
			PostalCode: firstNonEmpty(e.PostalCode, e.Zip),
		})
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
