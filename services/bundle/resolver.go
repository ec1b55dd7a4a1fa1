// Package bundle decides what to serve for a directory request inside an
// artifact and builds a player page when the upload did not ship one.
package bundle

import (
	"errors"
	"fmt"

	"gamehost/pkg/render"
	"gamehost/services/games"
)

const (
	pageTemplate        = "player.html.tmpl"
	dataSuffix          = ".data.gz"
	frameworkSuffix     = ".framework.js.gz"
	codeSuffix          = ".wasm.gz"
	streamingAssetsPath = "StreamingAssets"

	// ContentType is the media type of synthesized pages.
	ContentType = "text/html; charset=utf-8"
)

// ErrNoBuild reports a directory with neither an entry page nor a loader.
var ErrNoBuild = games.ErrNoBuild

// Page is a synthesized entry page. It is never written to disk.
type Page struct {
	BuildName   string
	LoaderPath  string
	ContentType string
	Body        []byte
}

type playerConfig struct {
	DataURL            string `json:"dataUrl"`
	FrameworkURL       string `json:"frameworkUrl"`
	CodeURL            string `json:"codeUrl"`
	StreamingAssetsURL string `json:"streamingAssetsUrl"`
	CompanyName        string `json:"companyName"`
	ProductName        string `json:"productName"`
	ProductVersion     string `json:"productVersion"`
}

type pageData struct {
	BuildName string
	LoaderURL string
	Config    playerConfig
}

// Resolver synthesizes player pages from the loader naming convention.
type Resolver struct {
	renderer    *render.Engine
	companyName string
}

// New returns a Resolver using renderer for page output.
func New(renderer *render.Engine, companyName string) (*Resolver, error) {
	if renderer == nil {
		return nil, errors.New("renderer is required")
	}
	if companyName == "" {
		companyName = "gamehost"
	}
	return &Resolver{renderer: renderer, companyName: companyName}, nil
}

// Resolve builds the player page for dir. It returns ErrNoBuild when dir has
// no loader script. Callers are expected to check for an existing entry page
// first; Resolve does not look at it.
func (r *Resolver) Resolve(dir string) (*Page, error) {
	loader, err := games.FindLoader(dir)
	if err != nil {
		return nil, err
	}

	base := loader.Prefix + loader.BuildName
	data := pageData{
		BuildName: loader.BuildName,
		LoaderURL: loader.Path(),
		Config: playerConfig{
			DataURL:            base + dataSuffix,
			FrameworkURL:       base + frameworkSuffix,
			CodeURL:            base + codeSuffix,
			StreamingAssetsURL: streamingAssetsPath,
			CompanyName:        r.companyName,
			ProductName:        loader.BuildName,
			ProductVersion:     "1.0",
		},
	}

	body, err := r.renderer.Render(pageTemplate, data)
	if err != nil {
		return nil, fmt.Errorf("render player page: %w", err)
	}

	return &Page{
		BuildName:   loader.BuildName,
		LoaderPath:  loader.Path(),
		ContentType: ContentType,
		Body:        body,
	}, nil
}
