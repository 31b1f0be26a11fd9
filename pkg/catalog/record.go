// Package catalog builds ISO 19139 metadata records for completed jobs and
// registers them with a GeoNetwork CSW catalogue.
package catalog

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/auscope/vgljobs/pkg/jobstorage"
	"github.com/auscope/vgljobs/pkg/jobstore"
)

// recordNamespace scopes name-based record identifiers.
var recordNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://vgl.auscope.org/jobs"))

// BoundingBox is the geographic extent of a job's selected region.
type BoundingBox struct {
	West  float64 `json:"west" yaml:"west"`
	East  float64 `json:"east" yaml:"east"`
	South float64 `json:"south" yaml:"south"`
	North float64 `json:"north" yaml:"north"`
}

// OnlineResource is a downloadable output file.
type OnlineResource struct {
	Name        string `json:"name" yaml:"name"`
	URL         string `json:"url" yaml:"url"`
	Size        int64  `json:"size" yaml:"size"`
	Description string `json:"description" yaml:"description"`
}

// Record describes a job's outputs for publication. Records are built once
// and never mutated.
type Record struct {
	FileIdentifier  string           `json:"file_identifier" yaml:"file_identifier"`
	Title           string           `json:"title" yaml:"title"`
	Abstract        string           `json:"abstract" yaml:"abstract"`
	ContactName     string           `json:"contact_name" yaml:"contact_name"`
	ContactEmail    string           `json:"contact_email" yaml:"contact_email"`
	DateStamp       time.Time        `json:"date_stamp" yaml:"date_stamp"`
	BoundingBox     BoundingBox      `json:"bounding_box" yaml:"bounding_box"`
	OnlineResources []OnlineResource `json:"online_resources" yaml:"online_resources"`
}

// BuildRecord assembles the catalogue record for job. It performs no I/O.
// The only failure is a submit date that does not parse with
// jobstore.SubmitDateLayout.
func BuildRecord(job *jobstore.Job, series *jobstore.Series, files []jobstorage.OutputFileInfo) (*Record, error) {
	if job == nil || series == nil {
		return nil, fmt.Errorf("catalog: job and series are required")
	}
	submitted, err := time.ParseInLocation(jobstore.SubmitDateLayout, job.SubmitDate, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("catalog: job %d submit date %q: %w", job.ID, job.SubmitDate, err)
	}

	resources := make([]OnlineResource, 0, len(files))
	for _, f := range files {
		resources = append(resources, OnlineResource{
			Name:        f.Key,
			URL:         f.PublicURL,
			Size:        f.Size,
			Description: describeFile(f),
		})
	}

	return &Record{
		FileIdentifier: recordIdentifier(job),
		Title:          title(job, series),
		Abstract:       abstract(job, series),
		ContactName:    job.User,
		ContactEmail:   job.EmailAddress,
		DateStamp:      submitted,
		BoundingBox: BoundingBox{
			West:  job.SelectionMinEasting,
			East:  job.SelectionMaxEasting,
			South: job.SelectionMinNorthing,
			North: job.SelectionMaxNorthing,
		},
		OnlineResources: resources,
	}, nil
}

// recordIdentifier is stable for a given job submission so repeated builds
// produce the same record.
func recordIdentifier(job *jobstore.Job) string {
	name := strconv.FormatInt(job.ID, 10) + "/" + job.SubmitDate
	return uuid.NewSHA1(recordNamespace, []byte(name)).String()
}

func title(job *jobstore.Job, series *jobstore.Series) string {
	if strings.TrimSpace(series.Name) == "" {
		return job.Name
	}
	return series.Name + ": " + job.Name
}

func abstract(job *jobstore.Job, series *jobstore.Series) string {
	parts := make([]string, 0, 2)
	if d := strings.TrimSpace(job.Description); d != "" {
		parts = append(parts, d)
	}
	if d := strings.TrimSpace(series.Description); d != "" {
		parts = append(parts, d)
	}
	return strings.Join(parts, "\n\n")
}

func describeFile(f jobstorage.OutputFileInfo) string {
	return fmt.Sprintf("%s (%d bytes)", f.Key, f.Size)
}
