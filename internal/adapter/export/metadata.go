package export

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Metadata is the station, instrument and people bookkeeping written into
// every interchange file header.
type Metadata struct {
	Timezone            string       `yaml:"timezone"`
	Revision            string       `yaml:"revision"`
	RevisionDescription string       `yaml:"revision_description"`
	Organisation        Organisation `yaml:"organisation"`
	Projects            []string     `yaml:"projects"`
	Originators         []Person     `yaml:"originators"`
	Submitters          []Person     `yaml:"submitters"`
	Station             Station      `yaml:"station"`
	Instrument          Instrument   `yaml:"instrument"`
}

// Organisation is the data originator organisation.
type Organisation struct {
	Code    string  `yaml:"code"`
	Name    string  `yaml:"name"`
	Acronym string  `yaml:"acronym"`
	Unit    string  `yaml:"unit"`
	Address Address `yaml:"address"`
}

// Address is a postal address.
type Address struct {
	Line1   string `yaml:"line1"`
	Line2   string `yaml:"line2"`
	Zip     string `yaml:"zip"`
	City    string `yaml:"city"`
	Country string `yaml:"country"`
}

// Person is an originator or submitter.
type Person struct {
	LastName  string `yaml:"last_name"`
	FirstName string `yaml:"first_name"`
	Email     string `yaml:"email"`
	OrgName   string `yaml:"org_name"`
	OrgAcr    string `yaml:"org_acronym"`
	ORCID     string `yaml:"orcid"`
}

// Station describes the measurement site.
type Station struct {
	Code         string  `yaml:"code"`
	PlatformCode string  `yaml:"platform_code"`
	Name         string  `yaml:"name"`
	WDCAID       string  `yaml:"wdca_id"`
	GAWID        string  `yaml:"gaw_id"`
	GAWName      string  `yaml:"gaw_name"`
	GAWType      string  `yaml:"gaw_type"`
	Landuse      string  `yaml:"landuse"`
	Setting      string  `yaml:"setting"`
	WMORegion    int     `yaml:"wmo_region"`
	Latitude     float64 `yaml:"latitude"`
	Longitude    float64 `yaml:"longitude"`
	Altitude     float64 `yaml:"altitude"`
}

// Instrument describes the counter and how its data were reduced.
type Instrument struct {
	Type       string `yaml:"type"`
	Name       string `yaml:"name"`
	LabCode    string `yaml:"lab_code"`
	Method     string `yaml:"method"`
	Regime     string `yaml:"regime"`
	Matrix     string `yaml:"matrix"`
	Statistics string `yaml:"statistics"`
	DataLevel  string `yaml:"data_level"`
}

// DefaultMetadata is used when no metadata document is configured.
func DefaultMetadata() Metadata {
	return Metadata{
		Timezone: "UTC",
		Revision: "1",
		Station: Station{
			Code:         "XX0000",
			PlatformCode: "XX0000",
			Name:         "unknown",
		},
		Instrument: Instrument{
			Type:       "CCNC",
			Name:       "CCN_100",
			Method:     "CCNC",
			Regime:     "IMG",
			Matrix:     "aerosol",
			Statistics: "arithmetic mean",
			DataLevel:  "2",
		},
	}
}

// LoadMetadata reads a YAML metadata document. Fields absent from the
// document keep their DefaultMetadata values. An empty path returns the defaults.
func LoadMetadata(path string) (Metadata, error) {
	meta := DefaultMetadata()
	if path == "" {
		return meta, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read export metadata: %w", err)
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse export metadata %s: %w", path, err)
	}
	if meta.Timezone != "UTC" {
		return Metadata{}, fmt.Errorf("export metadata %s: timezone must be UTC, got %q", path, meta.Timezone)
	}
	return meta, nil
}
