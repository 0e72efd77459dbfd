package annotate

// Named-entity values for text, conversational and document data.

// TextEntity is a character-offset span in a text data row.
type TextEntity struct {
	Start     int    `json:"start"`
	End       int    `json:"end"`
	MessageID string `json:"messageId,omitempty"` // For conversational data
}

func (e TextEntity) Validate() error {
	if e.Start < 0 || e.End < 0 {
		return Validationf("text entity offsets must be non-negative, got [%v, %v]", e.Start, e.End)
	}
	if e.Start > e.End {
		return Validationf("text entity start %v after end %v", e.Start, e.End)
	}
	return nil
}

// ConversationEntity is a TextEntity anchored to a specific message.
type ConversationEntity struct {
	TextEntity
}

func (e ConversationEntity) Validate() error {
	if e.MessageID == "" {
		return Validationf("a conversation entity needs a message id")
	}
	return e.TextEntity.Validate()
}

// DocumentTextSelection is one token run on a document page.
type DocumentTextSelection struct {
	TokenIDs []string `json:"tokenIds"`
	GroupID  string   `json:"groupId"`
	Page     int      `json:"page"`
}

func (s DocumentTextSelection) Validate() error {
	if len(s.TokenIDs) == 0 {
		return Validationf("a document text selection needs at least one token id")
	}
	if s.Page < 1 {
		return Validationf("document page numbers start at 1, got %v", s.Page)
	}
	return nil
}

// DocumentEntity is a set of text selections in a document data row.
type DocumentEntity struct {
	TextSelections []DocumentTextSelection `json:"textSelections"`
}

func (e DocumentEntity) Validate() error {
	if len(e.TextSelections) == 0 {
		return Validationf("a document entity needs at least one text selection")
	}
	for _, s := range e.TextSelections {
		if err := s.Validate(); err != nil {
			return err
		}
	}
	return nil
}
