package dialog

import (
	"fmt"
	"strings"
	"time"

	dialogmodel "github.com/zhouzirui/z-invoice/backend/internal/model/dialog"
)

// turnContext is the text the model sees for a non-final turn.
func turnContext(sess *dialogmodel.Session, transcript string) string {
	if sess.Phase == dialogmodel.PhaseAwaitingFirstInput {
		return transcript
	}
	var b strings.Builder
	b.WriteString(sess.FixedContext)
	fmt.Fprintf(&b, "\n\nAnswer to question %d (%s):\n%s", sess.Cursor+1, sess.CurrentQuestion(), transcript)
	return b.String()
}

// finalContext pairs every question with its answer after the original description.
func finalContext(sess *dialogmodel.Session) string {
	var b strings.Builder
	b.WriteString(sess.FixedContext)
	b.WriteString("\n\nAnswers to previous questions:")
	for i, answer := range sess.Answers {
		fmt.Fprintf(&b, "\n%d. %s\n   %s", i+1, sess.PendingQuestions[i], answer)
	}
	return b.String()
}

func formatInvoiceID(t time.Time, seq int) string {
	return fmt.Sprintf("INV-%04d-%02d%02d-%03d", t.Year(), int(t.Month()), t.Day(), seq%1000)
}

// timeWindow is the current hour through half past the next one.
func timeWindow(t time.Time) string {
	h := t.Hour()
	return fmt.Sprintf("%d:00-%d:30", h, (h+1)%24)
}
