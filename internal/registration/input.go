package registration

import (
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/nao1215/agrimarket/internal/apperr"
)

// RawInput はリクエストボディのJSON構造。documents は配列でなければならない。
type RawInput struct {
	AvatarURL       string   `json:"avatar_url"`
	State           string   `json:"state"`
	District        string   `json:"district"`
	ServiceState    string   `json:"service_state"`
	ServiceDistrict string   `json:"service_district"`
	Documents       []string `json:"documents"`
}

// Input は正規化と検証を済ませた登録内容。空文字列は未指定を表す。
type Input struct {
	AvatarURL       string   `json:"avatar_url" binding:"omitempty,url"`
	State           string   `json:"state" binding:"omitempty,max=100"`
	District        string   `json:"district" binding:"omitempty,max=100"`
	ServiceState    string   `json:"service_state" binding:"omitempty,max=100"`
	ServiceDistrict string   `json:"service_district" binding:"omitempty,max=100"`
	Documents       []string `json:"documents"`
}

// ParseInput は前後の空白を除去して入力を検証する。
// 長さの上限は空白除去後の文字数で判定する。
func ParseInput(raw RawInput) (Input, error) {
	in := Input{
		AvatarURL:       strings.TrimSpace(raw.AvatarURL),
		State:           strings.TrimSpace(raw.State),
		District:        strings.TrimSpace(raw.District),
		ServiceState:    strings.TrimSpace(raw.ServiceState),
		ServiceDistrict: strings.TrimSpace(raw.ServiceDistrict),
	}
	for _, d := range raw.Documents {
		if d = strings.TrimSpace(d); d != "" {
			in.Documents = append(in.Documents, d)
		}
	}

	if err := binding.Validator.ValidateStruct(&in); err != nil {
		return Input{}, apperr.FromBinding(err)
	}
	return in, nil
}

// optional は空文字列を nil に変換する。
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
