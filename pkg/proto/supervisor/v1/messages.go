package supervisorv1

import "github.com/joshuarubin/moldock-supervisor/pkg/project"

// ProgressRequest is the body of a Progress call. Path defaults to the
// progress file of Project.
type ProgressRequest struct {
	Project string `json:"project"`
	Path    string `json:"path,omitempty"`
}

// CSVPreviewRequest is the body of a CSVPreview call
type CSVPreviewRequest struct {
	Path    string `json:"path"`
	MaxRows int    `json:"max_rows,omitempty"`
}

// ProjectsResponse is the body returned by Projects
type ProjectsResponse struct {
	Projects []project.Project `json:"projects"`
}
