package config

import (
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestParseICEServersJSON(t *testing.T) {
	t.Parallel()

	raw := `[
	  {
	    "urls": ["stun:stun.example.com:3478"]
	  },
	  {
	    "urls": ["turn:turn.example.com:3478?transport=udp"],
	    "username": "user",
	    "credential": "pass"
	  }
	]`

	servers, err := ParseICEServersJSON(raw)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}

	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected stun urls: %#v", got)
	}
	if got := servers[1].Username; got != "user" {
		t.Fatalf("unexpected username: %q", got)
	}
	cred, ok := servers[1].Credential.(string)
	if !ok || cred != "pass" {
		t.Fatalf("unexpected credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersJSON_SupportsSingleStringURLs(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersJSON(`[{"urls": "stun:stun.example.com:3478"}]`)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 1 {
		t.Fatalf("expected 1 server, got %d", len(servers))
	}
	if got := servers[0].URLs; len(got) != 1 || got[0] != "stun:stun.example.com:3478" {
		t.Fatalf("unexpected urls: %#v", got)
	}
}

func TestParseICEServersJSON_Rejects(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"turn without creds": `[{"urls": ["turn:turn.example.com:3478?transport=udp"]}]`,
		"turn without cred":  `[{"urls": ["turns:turn.example.com"], "username": "u"}]`,
		"missing urls":       `[{"username": "u"}]`,
		"blank urls":         `[{"urls": ["  ", ""]}]`,
		"bad scheme":         `[{"urls": ["http://example.com"]}]`,
		"not an array":       `{"urls": "stun:stun.example.com"}`,
		"garbage":            `nope`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			if _, err := ParseICEServersJSON(raw); err == nil {
				t.Fatalf("expected error for %s", raw)
			}
		})
	}
}

func TestParseICEServersJSON_CleansURLs(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersJSON(`[{"urls": [" stun:a.example.com ", "", "stun:a.example.com", "stun:b.example.com"]}]`)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	got := servers[0].URLs
	if len(got) != 2 || got[0] != "stun:a.example.com" || got[1] != "stun:b.example.com" {
		t.Fatalf("unexpected urls: %#v", got)
	}
}

func TestParseICEServersFromConvenienceEnv(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv(
		"stun:stun.example.com:3478",
		"turn:turn.example.com:3478?transport=udp, turns:turn.example.com:5349",
		"user",
		"pass",
	)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 2 {
		t.Fatalf("expected 2 servers, got %d", len(servers))
	}
	if servers[0].Username != "" || servers[0].Credential != nil {
		t.Fatalf("stun server should not have creds: %#v", servers[0])
	}
	if len(servers[1].URLs) != 2 {
		t.Fatalf("expected 2 turn urls, got %#v", servers[1].URLs)
	}
	if servers[1].Username != "user" {
		t.Fatalf("unexpected turn username: %q", servers[1].Username)
	}
	if servers[1].Credential.(string) != "pass" {
		t.Fatalf("unexpected turn credential: %#v", servers[1].Credential)
	}
}

func TestParseICEServersFromConvenienceEnv_RequiresTURNCreds(t *testing.T) {
	t.Parallel()

	_, err := ParseICEServersFromConvenienceEnv("", "turn:turn.example.com:3478", "user", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), envTurnCredential) {
		t.Fatalf("error %q does not name %s", err, envTurnCredential)
	}
}

func TestParseICEServersFromConvenienceEnv_Empty(t *testing.T) {
	t.Parallel()

	servers, err := ParseICEServersFromConvenienceEnv(" , ", "", "", "")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if len(servers) != 0 {
		t.Fatalf("expected no servers, got %#v", servers)
	}
}

func TestICESource_JSONWinsOverConvenience(t *testing.T) {
	t.Parallel()

	src := ICESource{
		JSON:     `[{"urls": "stun:json.example.com"}]`,
		STUNURLs: "stun:convenience.example.com",
	}
	servers, err := src.Servers()
	if err != nil {
		t.Fatalf("Servers: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:json.example.com" {
		t.Fatalf("unexpected servers: %#v", servers)
	}

	src.JSON = "   "
	servers, err = src.Servers()
	if err != nil {
		t.Fatalf("Servers: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:convenience.example.com" {
		t.Fatalf("unexpected servers: %#v", servers)
	}
}

func TestICESource_JSONErrorNamesEnvVar(t *testing.T) {
	t.Parallel()

	_, err := ICESource{JSON: "[{"}.Servers()
	if err == nil || !strings.Contains(err.Error(), envICEServersJSON) {
		t.Fatalf("expected error naming %s, got %v", envICEServersJSON, err)
	}
}

func TestHasTURN(t *testing.T) {
	t.Parallel()

	stun := webrtc.ICEServer{URLs: []string{"stun:stun.example.com"}}
	turn := webrtc.ICEServer{URLs: []string{"stun:x", "turns:turn.example.com"}}

	if HasTURN(nil) {
		t.Fatal("HasTURN(nil) = true")
	}
	if HasTURN([]webrtc.ICEServer{stun}) {
		t.Fatal("HasTURN(stun only) = true")
	}
	if !HasTURN([]webrtc.ICEServer{stun, turn}) {
		t.Fatal("HasTURN(stun, turn) = false")
	}
}
