package config_test

import (
	"errors"
	"slices"
	"testing"

	"github.com/MrWong99/livescribe/internal/config"
	"github.com/MrWong99/livescribe/pkg/provider/embeddings"
	embedmock "github.com/MrWong99/livescribe/pkg/provider/embeddings/mock"
	"github.com/MrWong99/livescribe/pkg/provider/stt"
	sttmock "github.com/MrWong99/livescribe/pkg/provider/stt/mock"
	"github.com/MrWong99/livescribe/pkg/provider/translate"
	translatemock "github.com/MrWong99/livescribe/pkg/provider/translate/mock"
)

func TestRegistry_CreateRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()

	var gotEntry config.ProviderEntry
	reg.RegisterSTT("fake", func(e config.ProviderEntry) (stt.Transcriber, error) {
		gotEntry = e
		return &sttmock.Transcriber{Text: e.Model}, nil
	})
	reg.RegisterTranslator("fake", func(config.ProviderEntry) (translate.Translator, error) {
		return &translatemock.Translator{}, nil
	})
	reg.RegisterEmbeddings("fake", func(config.ProviderEntry) (embeddings.Provider, error) {
		return &embedmock.Provider{}, nil
	})

	entry := config.ProviderEntry{Name: "fake", Model: "tiny", Options: map[string]any{"language": "de"}}
	tr, err := reg.CreateSTT(entry)
	if err != nil {
		t.Fatalf("CreateSTT: %v", err)
	}
	if m, ok := tr.(*sttmock.Transcriber); !ok || m.Text != "tiny" {
		t.Errorf("CreateSTT returned %#v", tr)
	}
	if gotEntry.Options["language"] != "de" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if _, err := reg.CreateTranslator(config.ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateTranslator: %v", err)
	}
	if _, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "fake"}); err != nil {
		t.Errorf("CreateEmbeddings: %v", err)
	}
}

func TestRegistry_NotRegistered(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	_, err := reg.CreateSTT(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateSTT err = %v", err)
	}
	_, err = reg.CreateTranslator(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateTranslator err = %v", err)
	}
	_, err = reg.CreateEmbeddings(config.ProviderEntry{Name: "nope"})
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEmbeddings err = %v", err)
	}
}

func TestRegistry_FactoryErrorAndOverride(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	boom := errors.New("boom")
	reg.RegisterSTT("x", func(config.ProviderEntry) (stt.Transcriber, error) { return nil, boom })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "x"}); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want factory error", err)
	}
	reg.RegisterSTT("x", func(config.ProviderEntry) (stt.Transcriber, error) { return &sttmock.Transcriber{}, nil })
	if _, err := reg.CreateSTT(config.ProviderEntry{Name: "x"}); err != nil {
		t.Fatalf("after override: %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	t.Parallel()
	reg := config.NewRegistry()
	for _, n := range []string{"whisper", "deepgram", "openai"} {
		reg.RegisterSTT(n, func(config.ProviderEntry) (stt.Transcriber, error) { return nil, nil })
	}
	if got := reg.Names("stt"); !slices.Equal(got, []string{"deepgram", "openai", "whisper"}) {
		t.Errorf("Names(stt) = %v", got)
	}
	if got := reg.Names("translate"); len(got) != 0 {
		t.Errorf("Names(translate) = %v", got)
	}
	if got := reg.Names("bogus"); got != nil {
		t.Errorf("Names(bogus) = %v", got)
	}
}
