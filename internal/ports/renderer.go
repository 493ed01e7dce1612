package ports

// Artifact is the handle of a rendered summary.
type Artifact struct {
	Path  string `json:"path"`
	Title string `json:"title"`
	Body  string `json:"body,omitempty"`
}

// Renderer turns ledger data into a displayable chart artifact.
// Both methods return ErrNoData when there is nothing to draw.
type Renderer interface {
	RenderAuthor(id AuthorID, displayName string, tm *ThoughtMap) (Artifact, error)
	RenderAll(names map[AuthorID]string, l Ledger) (Artifact, error)
}
