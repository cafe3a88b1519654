package anonymize

// Category is one of the PII classes a caller can toggle.
type Category string

const (
	CategoryName    Category = "name"
	CategoryDate    Category = "date"
	CategoryEmail   Category = "email"
	CategoryPhone   Category = "phone"
	CategoryID      Category = "id"
	CategoryAddress Category = "address"
)

// Categories lists every toggle in the order the form presents them.
var Categories = []Category{
	CategoryName,
	CategoryDate,
	CategoryEmail,
	CategoryPhone,
	CategoryID,
	CategoryAddress,
}

// OptionSet carries one boolean per Category. The fields have no omitempty,
// so all six keys are always present on the wire.
type OptionSet struct {
	Name    bool `json:"name"`
	Date    bool `json:"date"`
	Email   bool `json:"email"`
	Phone   bool `json:"phone"`
	ID      bool `json:"id"`
	Address bool `json:"address"`
}

// AllOptions returns an OptionSet with every category enabled.
func AllOptions() OptionSet {
	return OptionSet{Name: true, Date: true, Email: true, Phone: true, ID: true, Address: true}
}

// Enabled reports whether c is switched on.
func (o OptionSet) Enabled(c Category) bool {
	switch c {
	case CategoryName:
		return o.Name
	case CategoryDate:
		return o.Date
	case CategoryEmail:
		return o.Email
	case CategoryPhone:
		return o.Phone
	case CategoryID:
		return o.ID
	case CategoryAddress:
		return o.Address
	default:
		return false
	}
}

// Set switches c on or off. Unknown categories are ignored.
func (o *OptionSet) Set(c Category, on bool) {
	switch c {
	case CategoryName:
		o.Name = on
	case CategoryDate:
		o.Date = on
	case CategoryEmail:
		o.Email = on
	case CategoryPhone:
		o.Phone = on
	case CategoryID:
		o.ID = on
	case CategoryAddress:
		o.Address = on
	}
}

// EnabledCategories returns the switched-on categories in canonical order.
func (o OptionSet) EnabledCategories() []Category {
	var out []Category
	for _, c := range Categories {
		if o.Enabled(c) {
			out = append(out, c)
		}
	}
	return out
}

// Any reports whether at least one category is enabled.
func (o OptionSet) Any() bool {
	return len(o.EnabledCategories()) > 0
}

type AnonymizationRequest struct {
	RawData   string    `json:"raw_data"`
	NamesList []string  `json:"names_list"`
	Options   OptionSet `json:"options"`
}

type AnonymizationResponse struct {
	Anonymized string `json:"anonymized"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

// Inputs is a snapshot of the form at the moment of submission.
type Inputs struct {
	Text    string
	Names   string
	Options OptionSet
}
