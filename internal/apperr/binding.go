package apperr

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

func init() {
	// フィールドエラーのキーをGoのフィールド名ではなくJSON名にする
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			for _, tag := range []string{"json", "form"} {
				name, _, _ := strings.Cut(f.Tag.Get(tag), ",")
				if name == "-" {
					return ""
				}
				if name != "" {
					return name
				}
			}
			return f.Name
		})
	}
}

// FromBinding はGinのバインドエラーをフィールド単位のバリデーションエラーに変換する。
// JSONとして解釈できない入力は BadRequest として返す。
func FromBinding(err error) *Error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
		return Validation(fields)
	}

	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		return Validation(map[string]string{
			typeErr.Field: fmt.Sprintf("%sを指定してください", jsonKind(typeErr.Type)),
		})
	}

	e := BadRequest(CodeValidation, "リクエストの形式が不正です")
	e.Err = err
	return e
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "必須です"
	case "max":
		return fmt.Sprintf("%s文字以内で入力してください", fe.Param())
	case "min":
		return fmt.Sprintf("%s以上を指定してください", fe.Param())
	case "url", "uri":
		return "URLの形式が不正です"
	case "oneof":
		return fmt.Sprintf("%s のいずれかを指定してください", fe.Param())
	default:
		return "値が不正です"
	}
}

func jsonKind(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		return "配列"
	case reflect.Map, reflect.Struct:
		return "オブジェクト"
	case reflect.String:
		return "文字列"
	case reflect.Bool:
		return "真偽値"
	default:
		return "数値"
	}
}
