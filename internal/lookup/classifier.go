package lookup

// Messages reported for outcomes that carry no result data.
const (
	MessageNoContainer = "results container not found"
	MessageTimeout     = "timed out waiting for results"
)

// Classifier maps an AwaitOutcome to the engine's transport-agnostic result.
type Classifier struct {
	// NotFoundMessage is returned verbatim for OutcomeNotFound.
	NotFoundMessage string
}

// Classify converts outcome. Found markup is returned exactly as read.
func (c Classifier) Classify(outcome AwaitOutcome) SearchResult {
	switch outcome.Kind {
	case OutcomeFound:
		text := outcome.Text
		if text == "" {
			text = PlainText(outcome.HTML)
		}
		return SearchResult{Status: StatusFound, HTML: outcome.HTML, Text: text}
	case OutcomeNotFound:
		return SearchResult{Status: StatusNotFound, Message: c.NotFoundMessage}
	case OutcomeNoContentContainer:
		return SearchResult{Status: StatusError, Message: MessageNoContainer}
	default:
		return SearchResult{Status: StatusError, Message: MessageTimeout}
	}
}
