// Package view はHTMLページのテンプレートと静的ファイルを提供する。
package view

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"time"

	"github.com/hitoshi/authdemo/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// ページ名
const (
	PagePublic    = "public"
	PageDashboard = "dashboard"
	PageProfile   = "profile"
)

var pages = []string{PagePublic, PageDashboard, PageProfile}

// timeLayout はページに表示する日時の書式。
const timeLayout = "2006-01-02 15:04 MST"

// PageData はテンプレートに渡す値。
// Recordはストアから取得できなかった場合nilになる。
type PageData struct {
	AppTitle string
	Identity *model.Identity
	Record   *model.UserRecord
}

// Renderer はページテンプレートを描画する。
type Renderer struct {
	appTitle       string
	firebaseConfig string
	templates      map[string]*template.Template
}

// NewRenderer はテンプレートを読み込みRendererを生成する。
// firebaseConfigはブラウザ側SDKの初期化に使うためJSONとしてページに埋め込む。
func NewRenderer(appTitle string, firebaseConfig any) (*Renderer, error) {
	cfg, err := json.Marshal(firebaseConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode firebase config: %w", err)
	}

	r := &Renderer{
		appTitle:       appTitle,
		firebaseConfig: string(cfg),
		templates:      make(map[string]*template.Template, len(pages)),
	}

	for _, page := range pages {
		tmpl, err := template.New("layout.html").Funcs(r.funcs()).ParseFS(templateFS,
			"templates/layout.html",
			"templates/"+page+".html",
		)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", page, err)
		}
		r.templates[page] = tmpl
	}

	return r, nil
}

// Render は指定ページを描画する。
// 描画途中で失敗した場合に不完全なHTMLを返さないよう、バッファに描画してから書き込む。
func (r *Renderer) Render(w io.Writer, page string, data PageData) error {
	tmpl, ok := r.templates[page]
	if !ok {
		return fmt.Errorf("unknown page: %s", page)
	}
	if data.AppTitle == "" {
		data.AppTitle = r.appTitle
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("failed to render %s: %w", page, err)
	}
	_, err := buf.WriteTo(w)
	return err
}

func (r *Renderer) funcs() template.FuncMap {
	return template.FuncMap{
		"firebaseConfig": func() string { return r.firebaseConfig },
		"formatTime":     formatTime,
		"preferenceCount": func(rec *model.UserRecord) int {
			if rec == nil || rec.Preferences == nil {
				return 0
			}
			return 2
		},
		"loginCount": func(rec *model.UserRecord) int {
			if rec == nil || rec.LoginCount <= 0 {
				return 1
			}
			return rec.LoginCount
		},
		"notificationsEnabled": func(rec *model.UserRecord) bool {
			if rec == nil || rec.Preferences == nil {
				return true
			}
			return rec.Preferences.Notifications
		},
		"theme": func(rec *model.UserRecord) model.Theme {
			if rec == nil || rec.Preferences == nil {
				return ""
			}
			return rec.Preferences.Theme
		},
	}
}

// formatTime は日時を表示用に整形する。未設定の場合はfallbackを返す。
func formatTime(t *time.Time, fallback string) string {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.UTC().Format(timeLayout)
}

// StaticHandler は埋め込み静的ファイルを配信するハンドラーを返す。
// /static/プレフィックスを取り除いてから呼び出す。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(fmt.Sprintf("static assets are not embedded: %v", err))
	}
	return http.FileServer(http.FS(sub))
}
