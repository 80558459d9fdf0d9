package handlers

import (
	"encoding/xml"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// relayAttributes configures the ConversationRelay element the telephony
// layer uses to open the media websocket back to this service.
type relayAttributes struct {
	URL             string `xml:"url,attr"`
	Language        string `xml:"language,attr"`
	WelcomeGreeting string `xml:"welcomeGreeting,attr"`
	TTSLanguage     string `xml:"ttsLanguage,attr"`
	TTSProvider     string `xml:"ttsProvider,attr"`
	Voice           string `xml:"voice,attr"`
}

type twimlConnect struct {
	Relay relayAttributes `xml:"ConversationRelay"`
}

type twimlResponse struct {
	XMLName xml.Name     `xml:"Response"`
	Connect twimlConnect `xml:"Connect"`
}

const (
	greetingEnJP = "こんにちは。英語を日本語に翻訳する通訳です。英語でお話頂ければ日本で翻訳します。"
	greetingJpEN = "Hello. I am an interpreter who translates Japanese into English. Please speak in Japanese."
	greetingFAQ  = "よくある質問にお答えします。ご質問をどうぞ。"

	voiceJapanese = "ja-JP-Chirp3-HD-Aoede"
	voiceEnglish  = "en-US-Journey-F"
)

// presetAttributes returns the relay configuration for a named preset.
// Unknown presets fall back to the English-to-Japanese translator.
func presetAttributes(preset, serverURL string) relayAttributes {
	switch preset {
	case "translator-jp-en":
		return relayAttributes{
			URL:             serverURL + "/translator-jp-en",
			Language:        "ja-JP",
			WelcomeGreeting: greetingJpEN,
			TTSLanguage:     "en-US",
			TTSProvider:     "Google",
			Voice:           voiceEnglish,
		}
	case "faq":
		return relayAttributes{
			URL:             serverURL + "/faq",
			Language:        "ja-JP",
			WelcomeGreeting: greetingFAQ,
			TTSLanguage:     "ja-JP",
			TTSProvider:     "Google",
			Voice:           voiceJapanese,
		}
	default:
		return relayAttributes{
			URL:             serverURL + "/translator-en-jp",
			Language:        "en-US",
			WelcomeGreeting: greetingEnJP,
			TTSLanguage:     "ja-JP",
			TTSProvider:     "Google",
			Voice:           voiceJapanese,
		}
	}
}

// queryAttributes builds the relay configuration from query parameters,
// defaulting each attribute to the translator-en-jp preset value.
func queryAttributes(params url.Values, serverURL string) relayAttributes {
	attrs := presetAttributes("translator-en-jp", serverURL)
	if v := params.Get("url"); v != "" {
		attrs.URL = v
	}
	if v := params.Get("language"); v != "" {
		attrs.Language = v
	}
	if v := params.Get("welcomeGreeting"); v != "" {
		attrs.WelcomeGreeting = v
	}
	if v := params.Get("ttsLanguage"); v != "" {
		attrs.TTSLanguage = v
	}
	if v := params.Get("ttsProvider"); v != "" {
		attrs.TTSProvider = v
	}
	if v := params.Get("voice"); v != "" {
		attrs.Voice = v
	}
	return attrs
}

// TwiMLHandler answers the telephony webhook on /webhook/twiml and
// /webhook/twiml/{preset}.
type TwiMLHandler struct {
	Logger *slog.Logger
}

func (h TwiMLHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serverURL := "wss://" + r.Host

	var attrs relayAttributes
	if rest := strings.TrimPrefix(r.URL.Path, "/webhook/twiml/"); rest != r.URL.Path && rest != "" {
		preset := rest
		if idx := strings.LastIndex(rest, "/"); idx >= 0 {
			preset = rest[idx+1:]
		}
		attrs = presetAttributes(preset, serverURL)
	} else {
		attrs = queryAttributes(r.URL.Query(), serverURL)
	}

	body, err := xml.MarshalIndent(twimlResponse{Connect: twimlConnect{Relay: attrs}}, "", "  ")
	if err != nil {
		if h.Logger != nil {
			h.Logger.Error("marshal twiml", "error", err)
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/xml")
	_, _ = w.Write([]byte(xml.Header))
	_, _ = w.Write(body)
}
