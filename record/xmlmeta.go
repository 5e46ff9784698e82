package record

import (
	"encoding/xml"
	"fmt"
	"os"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/violation"
)

const (
	xsiNamespace  = "http://www.w3.org/2001/XMLSchema-instance"
	schemaFile    = "VitronicOpenFormatReader.V04.05.xsd"
	metadataOwner = "KTC"
)

// Incident is the metadata document written beside every violation's
// artifacts. The plate block stays empty here; an external matching step
// fills it in later.
type Incident struct {
	XMLName     xml.Name `xml:"Incident"`
	Name        string   `xml:"Name,attr"`
	PrimaryType string   `xml:"PrimaryType,attr"`
	Vendor      string   `xml:"Vendor,attr"`
	Version     string   `xml:"Version,attr"`
	XmlnsXsi    string   `xml:"xmlns:xsi,attr"`
	Schema      string   `xml:"xsi:noNamespaceSchemaLocation,attr"`

	Capture      Capture      `xml:"Capture"`
	Devices      Devices      `xml:"Devices"`
	Files        Files        `xml:"Files"`
	Locations    Locations    `xml:"Locations"`
	Measurements Measurements `xml:"Measurements"`
	Plate        PlateBlock   `xml:"Plate"`
}

type Capture struct {
	IncidentDateTime string       `xml:"IncidentDateTime,attr"`
	VehicleClass     VehicleClass `xml:"VehicleClass"`
	Lane             Lane         `xml:"Lane"`
}

type VehicleClass struct {
	Measured string `xml:"Measured,attr"`
}

type Lane struct {
	Alias string `xml:"Alias,attr"`
	Index int    `xml:"Index,attr"`
}

type Devices struct {
	Device []Device `xml:"Device"`
}

type Device struct {
	Name string `xml:"Name,attr"`
}

type Files struct {
	File []File `xml:"File"`
}

type File struct {
	Group string `xml:"Group,attr"`
	Name  string `xml:"Name,attr"`
}

type Locations struct {
	Location []Location `xml:"Location"`
}

type Location struct {
	Address   string `xml:"Address,attr"`
	Code      string `xml:"Code,attr"`
	Direction string `xml:"Direction,attr"`
	Name      string `xml:"Name,attr"`
}

// Measurements holds a single element named after the primary type
type Measurements struct {
	Measurement Measurement `xml:",any"`
}

type Measurement struct {
	XMLName xml.Name
}

type PlateBlock struct {
	Category string `xml:"Category,attr"`
	Country  string `xml:"Country,attr"`
	Region   string `xml:"Region,attr"`
	Symbol   string `xml:"Symbol,attr"`
	Text     string `xml:"Text,attr"`
}

// primaryType maps a violation type to the metadata schema's enum
func primaryType(t violation.Type) string {
	if t == violation.TypeMobilePhone {
		return "MobilePhone"
	}
	return "Seatbelt"
}

// newIncident assembles the metadata document for one violation.
// timestamp is the compact violation timestamp; file names are relative
// to the incident folder.
func newIncident(cfg config.Label, timestamp string, id int64,
	videoName, overviewName, lprName string, vtype violation.Type) *Incident {

	ptype := primaryType(vtype)

	name := fmt.Sprintf("%s-%s%s-%03d", cfg.DeviceID,
		timestamp[0:8], timestamp[9:15], id)

	when := fmt.Sprintf("%s-%s-%s %s:%s:%s", timestamp[0:4],
		timestamp[4:6], timestamp[6:8], timestamp[9:11], timestamp[11:13],
		timestamp[13:19])

	return &Incident{
		Name:        name,
		PrimaryType: ptype,
		Vendor:      metadataOwner,
		Version:     "1",
		XmlnsXsi:    xsiNamespace,
		Schema:      schemaFile,
		Capture: Capture{
			IncidentDateTime: when,
			VehicleClass:     VehicleClass{Measured: "Car"},
			Lane:             Lane{Alias: "RoadShoulder", Index: 0},
		},
		Devices: Devices{
			Device: []Device{{Name: cfg.DeviceID}},
		},
		Files: Files{
			File: []File{
				{Group: "Overview", Name: overviewName},
				{Group: "VideoFrame", Name: lprName},
				{Group: "Video", Name: videoName},
			},
		},
		Locations: Locations{
			Location: []Location{{
				Address:   cfg.Place,
				Code:      fmt.Sprintf("%d", cfg.SiteCode),
				Direction: "Approaching",
				Name:      cfg.Name,
			}},
		},
		Measurements: Measurements{
			Measurement: Measurement{
				XMLName: xml.Name{Local: ptype},
			},
		},
		Plate: PlateBlock{Category: "Private"},
	}
}

// write persists the document with an XML header and indentation
func (inc *Incident) write(path string) error {

	body, err := xml.MarshalIndent(inc, "", "  ")

	if err != nil {
		return fmt.Errorf("marshalling incident metadata: %w", err)
	}

	out := append([]byte(xml.Header), body...)
	out = append(out, '\n')

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing incident metadata: %w", err)
	}

	return nil
}
