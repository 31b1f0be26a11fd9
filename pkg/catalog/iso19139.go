package catalog

import (
	"encoding/xml"
	"strconv"
)

// XML namespaces used on the wire.
const (
	NamespaceCSW = "http://www.opengis.net/cat/csw/2.0.2"
	NamespaceGMD = "http://www.isotc211.org/2005/gmd"
	NamespaceGCO = "http://www.isotc211.org/2005/gco"
	NamespaceOWS = "http://www.opengis.net/ows"

	codeListBase = "http://standards.iso.org/ittf/PubliclyAvailableStandards/ISO_19139_Schemas/resources/codelist/ML_gmxCodelists.xml"

	downloadProtocol = "WWW:DOWNLOAD-1.0-http--download"
	isoDateTime      = "2006-01-02T15:04:05"
)

// Elements are written with literal prefixes; the root declares them.

type charString struct {
	Value string `xml:"gco:CharacterString"`
}

type decimal struct {
	Value string `xml:"gco:Decimal"`
}

type codeValue struct {
	CodeList      string `xml:"codeList,attr"`
	CodeListValue string `xml:"codeListValue,attr"`
	Value         string `xml:",chardata"`
}

func newCode(list, value string) codeValue {
	return codeValue{CodeList: codeListBase + "#" + list, CodeListValue: value, Value: value}
}

type transaction struct {
	XMLName  xml.Name `xml:"csw:Transaction"`
	XMLNSCSW string   `xml:"xmlns:csw,attr"`
	Service  string   `xml:"service,attr"`
	Version  string   `xml:"version,attr"`
	Insert   struct {
		Metadata mdMetadata `xml:"gmd:MD_Metadata"`
	} `xml:"csw:Insert"`
}

type mdMetadata struct {
	XMLNSGMD       string     `xml:"xmlns:gmd,attr"`
	XMLNSGCO       string     `xml:"xmlns:gco,attr"`
	FileIdentifier charString `xml:"gmd:fileIdentifier"`
	Language       charString `xml:"gmd:language"`
	HierarchyLevel struct {
		Code codeValue `xml:"gmd:MD_ScopeCode"`
	} `xml:"gmd:hierarchyLevel"`
	Contact struct {
		Party responsibleParty `xml:"gmd:CI_ResponsibleParty"`
	} `xml:"gmd:contact"`
	DateStamp struct {
		Value string `xml:"gco:DateTime"`
	} `xml:"gmd:dateStamp"`
	Identification struct {
		Data dataIdentification `xml:"gmd:MD_DataIdentification"`
	} `xml:"gmd:identificationInfo"`
	Distribution struct {
		Options struct {
			Digital struct {
				OnLine []onLine `xml:"gmd:onLine"`
			} `xml:"gmd:MD_DigitalTransferOptions"`
		} `xml:"gmd:MD_Distribution>gmd:transferOptions"`
	} `xml:"gmd:distributionInfo"`
}

type responsibleParty struct {
	IndividualName charString `xml:"gmd:individualName"`
	Email          charString `xml:"gmd:contactInfo>gmd:CI_Contact>gmd:address>gmd:CI_Address>gmd:electronicMailAddress"`
	Role           struct {
		Code codeValue `xml:"gmd:CI_RoleCode"`
	} `xml:"gmd:role"`
}

type dataIdentification struct {
	Citation struct {
		Title charString `xml:"gmd:title"`
		Date  struct {
			DateTime string    `xml:"gmd:date>gco:DateTime"`
			Type     codeValue `xml:"gmd:dateType>gmd:CI_DateTypeCode"`
		} `xml:"gmd:date>gmd:CI_Date"`
	} `xml:"gmd:citation>gmd:CI_Citation"`
	Abstract charString `xml:"gmd:abstract"`
	Language charString `xml:"gmd:language"`
	Extent   struct {
		Box geographicBox `xml:"gmd:EX_GeographicBoundingBox"`
	} `xml:"gmd:extent>gmd:EX_Extent>gmd:geographicElement"`
}

type geographicBox struct {
	West  decimal `xml:"gmd:westBoundLongitude"`
	East  decimal `xml:"gmd:eastBoundLongitude"`
	South decimal `xml:"gmd:southBoundLatitude"`
	North decimal `xml:"gmd:northBoundLatitude"`
}

type onLine struct {
	Resource struct {
		Linkage     string     `xml:"gmd:linkage>gmd:URL"`
		Protocol    charString `xml:"gmd:protocol"`
		Name        charString `xml:"gmd:name"`
		Description charString `xml:"gmd:description"`
	} `xml:"gmd:CI_OnlineResource"`
}

func formatDecimal(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func toMetadata(r *Record) mdMetadata {
	md := mdMetadata{
		XMLNSGMD:       NamespaceGMD,
		XMLNSGCO:       NamespaceGCO,
		FileIdentifier: charString{r.FileIdentifier},
		Language:       charString{"eng"},
	}
	md.HierarchyLevel.Code = newCode("MD_ScopeCode", "dataset")

	md.Contact.Party.IndividualName = charString{r.ContactName}
	md.Contact.Party.Email = charString{r.ContactEmail}
	md.Contact.Party.Role.Code = newCode("CI_RoleCode", "originator")

	stamp := r.DateStamp.UTC().Format(isoDateTime)
	md.DateStamp.Value = stamp

	id := &md.Identification.Data
	id.Citation.Title = charString{r.Title}
	id.Citation.Date.DateTime = stamp
	id.Citation.Date.Type = newCode("CI_DateTypeCode", "creation")
	id.Abstract = charString{r.Abstract}
	id.Language = charString{"eng"}
	id.Extent.Box = geographicBox{
		West:  decimal{formatDecimal(r.BoundingBox.West)},
		East:  decimal{formatDecimal(r.BoundingBox.East)},
		South: decimal{formatDecimal(r.BoundingBox.South)},
		North: decimal{formatDecimal(r.BoundingBox.North)},
	}

	for _, res := range r.OnlineResources {
		var ol onLine
		ol.Resource.Linkage = res.URL
		ol.Resource.Protocol = charString{downloadProtocol}
		ol.Resource.Name = charString{res.Name}
		ol.Resource.Description = charString{res.Description}
		md.Distribution.Options.Digital.OnLine = append(md.Distribution.Options.Digital.OnLine, ol)
	}
	return md
}

// MarshalMetadata renders r as a standalone gmd:MD_Metadata document.
func MarshalMetadata(r *Record) ([]byte, error) {
	doc := struct {
		XMLName xml.Name `xml:"gmd:MD_Metadata"`
		mdMetadata
	}{mdMetadata: toMetadata(r)}
	return marshalDocument(doc)
}

// MarshalInsert renders the CSW-T Insert transaction for r.
func MarshalInsert(r *Record) ([]byte, error) {
	tx := transaction{XMLNSCSW: NamespaceCSW, Service: "CSW", Version: "2.0.2"}
	tx.Insert.Metadata = toMetadata(r)
	return marshalDocument(tx)
}

func marshalDocument(v any) ([]byte, error) {
	body, err := xml.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}

// Responses are matched by local name so any prefix binding decodes.
type transactionResponse struct {
	XMLName       xml.Name
	TotalInserted int      `xml:"TransactionSummary>totalInserted"`
	Identifiers   []string `xml:"InsertResult>BriefRecord>identifier"`
}

type exceptionReport struct {
	Exceptions []struct {
		Code    string   `xml:"exceptionCode,attr"`
		Locator string   `xml:"locator,attr"`
		Texts   []string `xml:"ExceptionText"`
	} `xml:"Exception"`
}
