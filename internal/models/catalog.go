package models

type Service struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description"`
	Icon        string  `json:"icon,omitempty" yaml:"icon"`
	Price       float64 `json:"price" yaml:"price"`
}

type Consultant struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	Specialty string `json:"specialty,omitempty" yaml:"specialty"`
	ServiceID string `json:"service_id" yaml:"service_id"`
	AvatarURL string `json:"avatar_url,omitempty" yaml:"avatar_url"`
}

// Catalog is the read-only reference data injected at startup.
type Catalog struct {
	Services    []Service
	Consultants []Consultant
}

func (c Catalog) Service(id string) (Service, bool) {
	for _, s := range c.Services {
		if s.ID == id {
			return s, true
		}
	}
	return Service{}, false
}

func (c Catalog) Consultant(id string) (Consultant, bool) {
	for _, cons := range c.Consultants {
		if cons.ID == id {
			return cons, true
		}
	}
	return Consultant{}, false
}

// ConsultantsFor returns consultants offering the given service, in catalog order.
func (c Catalog) ConsultantsFor(serviceID string) []Consultant {
	var out []Consultant
	for _, cons := range c.Consultants {
		if cons.ServiceID == serviceID {
			out = append(out, cons)
		}
	}
	return out
}
