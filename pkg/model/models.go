package model

import "time"

// SourceNFCTag marks medication records created from a scanned tag
const SourceNFCTag = "NFC Tag"

// UnknownMedicationID is the catalog id used when a drug name has no catalog match
const UnknownMedicationID = "unknown"

// PrescriptionPayload is the document stored on an NFC tag
type PrescriptionPayload struct {
	ID        string           `json:"rxId"`
	PatientID string           `json:"patient"`
	Meds      []MedicationLine `json:"meds"`
	IssuedAt  string           `json:"issuedAt"`
	Signed    bool             `json:"signed"`
}

// MedicationLine is one prescribed drug inside a PrescriptionPayload
type MedicationLine struct {
	Drug string `json:"drug"`
	Dose string `json:"dose"`
	Freq string `json:"freq"`
	Days int    `json:"days"`
}

// MedicationRecord is the normalized, persisted form of a MedicationLine
type MedicationRecord struct {
	ID             string    `json:"id" bson:"_id"`
	UserID         string    `json:"user_id" bson:"userId"`
	MedicationID   string    `json:"medication_id" bson:"medicationId"`
	MedicationRef  string    `json:"medication_ref" bson:"medicationRef"`
	Name           string    `json:"name" bson:"name"`
	DoseMg         int       `json:"dose_mg" bson:"doseMg"`
	FrequencyHours int       `json:"frequency_hours" bson:"frequencyHours"`
	StartDate      time.Time `json:"start_date" bson:"startDate"`
	EndDate        time.Time `json:"end_date" bson:"endDate"`
	CreatedAt      time.Time `json:"created_at" bson:"createdAt"`
	Active         bool      `json:"active" bson:"active"`
	PrescriptionID string    `json:"prescription_id" bson:"prescriptionId"`
	SourceFile     string    `json:"source_file" bson:"sourceFile"`
}

// CatalogEntry is a canonical medication known to the catalog
type CatalogEntry struct {
	ID       string `json:"id" bson:"_id"`
	Name     string `json:"name" bson:"name"`
	Position int    `json:"position" bson:"position"`
}

// PrescriptionSummary groups the medication records persisted from one prescription
type PrescriptionSummary struct {
	PrescriptionID  string    `json:"prescription_id"`
	UserID          string    `json:"user_id"`
	MedicationCount int       `json:"medication_count"`
	Active          bool      `json:"active"`
	StartDate       time.Time `json:"start_date"`
	EndDate         time.Time `json:"end_date"`
	CreatedAt       time.Time `json:"created_at"`
}

// PharmacyPoint is a pharmacy location from the pharmacy catalog
type PharmacyPoint struct {
	Name         string   `json:"name"`
	Address      string   `json:"address"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Chain        string   `json:"chain"`
	OpeningHours []string `json:"opening_hours"`
	OpeningDays  []string `json:"opening_days"`
}

// RankedPoint pairs a pharmacy with its distance from the user in meters
type RankedPoint struct {
	Point    PharmacyPoint `json:"point"`
	Distance float64       `json:"distance_meters"`
}
