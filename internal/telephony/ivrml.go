package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"strings"
)

// Voice response markup builder (TwiML-compatible; Exotel accepts the
// same dialect). It intentionally avoids any provider SDK dependency.
//
// Only include primitives we need at the adapter boundary.

type voiceResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type voiceSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type voiceGather struct {
	XMLName   xml.Name `xml:"Gather"`
	Action    string   `xml:"action,attr"`
	Method    string   `xml:"method,attr"`
	NumDigits int      `xml:"numDigits,attr,omitempty"`
	Timeout   int      `xml:"timeout,attr,omitempty"`
	Say       *voiceSay
}

type voiceHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type voiceRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	URL     string   `xml:",chardata"`
}

// GatherSpec configures a digit-collection verb.
type GatherSpec struct {
	ActionURL string
	Prompt    string
	NumDigits int
	Timeout   int
}

// RenderPrompt produces markup that speaks a prompt and optionally
// gathers digits. With a nil gather the call speaks and hangs up.
func RenderPrompt(say string, gather *GatherSpec) (string, error) {
	var r voiceResponse

	if gather != nil {
		if strings.TrimSpace(gather.ActionURL) == "" {
			return "", errors.New("telephony: gather action url required")
		}
		g := voiceGather{
			Action:    gather.ActionURL,
			Method:    "POST",
			NumDigits: gather.NumDigits,
			Timeout:   gather.Timeout,
		}
		if gather.Prompt != "" {
			g.Say = &voiceSay{Text: gather.Prompt}
		}
		if say != "" {
			r.Verbs = append(r.Verbs, voiceSay{Text: say})
		}
		r.Verbs = append(r.Verbs, g)
	} else {
		if say != "" {
			r.Verbs = append(r.Verbs, voiceSay{Text: say})
		}
		r.Verbs = append(r.Verbs, voiceHangup{})
	}

	return renderVoice(r)
}

// RenderRedirect produces markup that replays another document, used to
// repeat the menu after an unrecognized keypress.
func RenderRedirect(say, targetURL string) (string, error) {
	if strings.TrimSpace(targetURL) == "" {
		return "", errors.New("telephony: redirect url required")
	}
	var r voiceResponse
	if say != "" {
		r.Verbs = append(r.Verbs, voiceSay{Text: say})
	}
	r.Verbs = append(r.Verbs, voiceRedirect{URL: targetURL})
	return renderVoice(r)
}

func renderVoice(r voiceResponse) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
