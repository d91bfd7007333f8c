// Package model defines the normalized record and response envelope shared
// across matchers, extractors and the dispatch engine.
package model

// Resolution status vocabulary. Every extractor result and every dispatcher
// result carries exactly one of these.
const (
	StatusOK        = "ok"        // success, Data present
	StatusWarning   = "warning"   // success with a caveat, Data present
	StatusErr       = "err"       // no matching source / no content
	StatusAPIErr    = "apierr"    // upstream API returned an error or empty payload
	StatusParserErr = "parsererr" // expected page or JSON structure absent
	StatusR18       = "r18"       // content-policy rejection, no Data
	StatusRematch   = "rematch"   // indirection, Msg carries the target URL
	StatusExcept    = "except"    // uncaught fault, converted at the dispatch boundary
)

// Category tags content by the shared cross-source taxonomy. It is inferred
// from each source's own labels and is not authoritative across sources.
type Category string

// Category values.
const (
	CategoryVideo    Category = "VIDEO"
	CategoryMusic    Category = "MUSIC"
	CategoryDrawing  Category = "DRAWING"
	CategoryArticle  Category = "ARTICLE"
	CategorySoftware Category = "SOFTWARE"
	CategoryCraft    Category = "CRAFT"
	CategoryOther    Category = "OTHER"
)

// Record is the normalized metadata payload produced by a successful
// extraction. UID is "<source>:<native-id>" and doubles as the cache key;
// the extractor assigns it because only the extractor knows the source's
// canonical identity (a wiki entry's title may change after redirect
// resolution).
type Record struct {
	Title      string   `json:"title"`
	UID        string   `json:"uid,omitempty"`
	Cover      string   `json:"cover,omitempty"`
	Media      []string `json:"media,omitempty"`
	Desc       string   `json:"desc,omitempty"`
	PTime      string   `json:"ptime,omitempty"`
	Author     []string `json:"author,omitempty"`
	AuthorName []string `json:"author_name,omitempty"`
	Category   Category `json:"category,omitempty"`
	Repost     *bool    `json:"repost,omitempty"`
}

// Envelope is the uniform response shape. Data is present iff the status is
// ok or warning; failure is signaled in-band, never via transport errors.
type Envelope struct {
	Status string  `json:"status"`
	Msg    string  `json:"msg"`
	Data   *Record `json:"data,omitempty"`
}

// OK wraps a record in a success envelope.
func OK(data *Record) Envelope {
	return Envelope{Status: StatusOK, Msg: "ok", Data: data}
}

// Fail builds a data-less envelope with the given status and message.
func Fail(status, msg string) Envelope {
	return Envelope{Status: status, Msg: msg}
}

// Succeeded reports whether the envelope carries data.
func (e Envelope) Succeeded() bool {
	return e.Status == StatusOK || e.Status == StatusWarning
}

// Bool returns a pointer for optional boolean fields.
func Bool(v bool) *bool {
	return &v
}
