package provider

import (
	"encoding/xml"
	"strings"

	"git.mci.dev/mse/sre/phoenix/golang/fleetcomm/internal/config"
)

const (
	recordMaxLength  = 30
	recordFinishKey  = "#"
	goodbyeMessage   = "Thank you for your response. Goodbye."
	defaultVoiceText = "Hello! This is a test call from fleetcomm."
)

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Start   *twimlStart  `xml:"Start,omitempty"`
	Say     []twimlSay   `xml:"Say"`
	Record  *twimlRecord `xml:"Record,omitempty"`
}

type twimlStart struct {
	Transcription twimlTranscription `xml:"Transcription"`
}

type twimlTranscription struct {
	StatusCallbackURL   string `xml:"statusCallbackUrl,attr,omitempty"`
	LanguageCode        string `xml:"languageCode,attr"`
	Track               string `xml:"track,attr"`
	TranscriptionEngine string `xml:"transcriptionEngine,attr"`
}

type twimlSay struct {
	Voice    string `xml:"voice,attr"`
	Language string `xml:"language,attr"`
	Text     string `xml:",chardata"`
}

type twimlRecord struct {
	Action             string `xml:"action,attr,omitempty"`
	MaxLength          int    `xml:"maxLength,attr"`
	FinishOnKey        string `xml:"finishOnKey,attr"`
	Transcribe         bool   `xml:"transcribe,attr"`
	TranscribeCallback string `xml:"transcribeCallback,attr,omitempty"`
}

type ScriptOptions struct {
	Voice         string
	Language      string
	PublicBaseURL string
}

func DefaultScriptOptions() ScriptOptions {
	return ScriptOptions{
		Voice:         config.Conf.TwilioVoice,
		Language:      config.Conf.TwilioLanguage,
		PublicBaseURL: strings.TrimRight(config.Conf.PublicBaseURL, "/"),
	}
}

// VoiceScript speaks message with realtime transcription running, then records the reply.
func VoiceScript(message string, opts ScriptOptions) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = defaultVoiceText
	}

	doc := twimlResponse{
		Start: &twimlStart{
			Transcription: twimlTranscription{
				LanguageCode:        opts.Language,
				Track:               "both_tracks",
				TranscriptionEngine: "google",
			},
		},
		Say: []twimlSay{{Voice: opts.Voice, Language: opts.Language, Text: message}},
		Record: &twimlRecord{
			MaxLength:   recordMaxLength,
			FinishOnKey: recordFinishKey,
			Transcribe:  true,
		},
	}

	if opts.PublicBaseURL != "" {
		doc.Start.Transcription.StatusCallbackURL = opts.PublicBaseURL + TranscriptionEventsPath
		doc.Record.Action = opts.PublicBaseURL + RecordingCallbackPath
		doc.Record.TranscribeCallback = opts.PublicBaseURL + TranscriptionCallbackPath
	}

	return render(doc)
}

// GoodbyeScript ends the call after the reply was recorded.
func GoodbyeScript(opts ScriptOptions) (string, error) {
	return render(twimlResponse{
		Say: []twimlSay{{Voice: opts.Voice, Language: opts.Language, Text: goodbyeMessage}},
	})
}

func render(doc twimlResponse) (string, error) {
	out, err := xml.Marshal(doc)
	if err != nil {
		return "", err
	}

	return xml.Header + string(out), nil
}
