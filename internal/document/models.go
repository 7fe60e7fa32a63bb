package document

// Document is a committed drilling-operations document. Field names follow
// the persisted JSON layout.
type Document struct {
	ID             string    `json:"id" bson:"id"`
	Title          string    `json:"title" bson:"title"`
	Category       string    `json:"category" bson:"category"`
	IsFeatured     bool      `json:"isFeatured" bson:"isFeatured"`
	Tags           []string  `json:"tags,omitempty" bson:"tags,omitempty"`
	EquipmentTags  []string  `json:"equipmentTags" bson:"equipmentTags"`
	OperationsTags []string  `json:"operationsTags" bson:"operationsTags"`
	Sections       []Section `json:"sections" bson:"sections"`
	// LastModified is Unix milliseconds.
	LastModified int64 `json:"lastModified" bson:"lastModified"`
	Version      int   `json:"version" bson:"version"`
}

// Section is a titled chunk of serialized content.
type Section struct {
	ID      string `json:"id" bson:"id"`
	Title   string `json:"title" bson:"title"`
	Content string `json:"content" bson:"content"`
}

// Revision is an immutable snapshot taken at every commit.
type Revision struct {
	ID           string   `json:"id"`
	DocumentID   string   `json:"documentId"`
	Timestamp    int64    `json:"timestamp"`
	Version      int      `json:"version"`
	DocumentData Document `json:"documentData"`
}

// Activity is one entry of the recent activity log.
type Activity struct {
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
	User      string `json:"user,omitempty"`
}

// Draft is an unsaved snapshot of an editing session.
type Draft struct {
	Title          string    `json:"title"`
	Category       string    `json:"category"`
	IsFeatured     bool      `json:"isFeatured"`
	Sections       []Section `json:"sections"`
	EquipmentTags  []string  `json:"equipmentTags"`
	OperationsTags []string  `json:"operationsTags"`
	Timestamp      int64     `json:"timestamp"`
}

// SearchResult is one hit of a keyword search; SectionIndex is -1 for a
// title match.
type SearchResult struct {
	Document     Document `json:"document"`
	SectionIndex int      `json:"sectionIndex"`
	Excerpt      string   `json:"excerpt"`
}
