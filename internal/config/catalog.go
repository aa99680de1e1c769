package config

import "consultbot/internal/models"

func DefaultSlots() []SlotTemplate {
	return []SlotTemplate{
		{ID: "s1", Time: "09:00"},
		{ID: "s2", Time: "10:00"},
		{ID: "s3", Time: "11:00"},
		{ID: "s4", Time: "14:00"},
		{ID: "s5", Time: "15:00"},
		{ID: "s6", Time: "16:00"},
	}
}

func DefaultServices() []models.Service {
	return []models.Service{
		{
			ID:          "financial",
			Name:        "Financial Consulting",
			Description: "Tax planning, investment advice, and audit preparation.",
			Icon:        "💰",
			Price:       150,
		},
		{
			ID:          "legal",
			Name:        "Legal Advisory",
			Description: "Contract review, business formation, and IP protection.",
			Icon:        "⚖️",
			Price:       200,
		},
		{
			ID:          "marketing",
			Name:        "Marketing Strategy",
			Description: "Brand positioning, digital campaigns, and SEO audits.",
			Icon:        "📈",
			Price:       120,
		},
		{
			ID:          "tech",
			Name:        "IT & Tech Support",
			Description: "Cloud migration, cybersecurity checks, and software consulting.",
			Icon:        "💻",
			Price:       180,
		},
	}
}

func DefaultConsultants() []models.Consultant {
	return []models.Consultant{
		{ID: "c1", Name: "Alice Johnson", Specialty: "Tax Specialist", ServiceID: "financial"},
		{ID: "c2", Name: "Robert Smith", Specialty: "Corporate Lawyer", ServiceID: "legal"},
		{ID: "c3", Name: "Sarah Lee", Specialty: "Growth Hacker", ServiceID: "marketing"},
		{ID: "c4", Name: "David Chen", Specialty: "Cloud Architect", ServiceID: "tech"},
	}
}
