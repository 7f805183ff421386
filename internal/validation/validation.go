// Package validation はリクエスト入力の検証を提供する。
// go-playground/validatorの構造体タグで宣言的に検証し、
// エラーメッセージは英語翻訳とJSONフィールド名で組み立てる。
package validation

import (
	"errors"
	"reflect"
	"sort"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/hitoshi/coachdesk/internal/model"
)

// カスタム検証タグ
const notBlankTag = "notblank"

// Validator は構造体タグに基づく入力検証を行う。
type Validator struct {
	validate   *validator.Validate
	translator ut.Translator
}

// New はValidatorの新しいインスタンスを生成する。
func New() *Validator {
	v := validator.New()

	english := en.New()
	uni := ut.New(english, english)
	trans, _ := uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(v, trans)

	// エラーにはGoのフィールド名ではなくJSONタグ名を使う
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation(notBlankTag, notBlank)
	_ = v.RegisterTranslation(notBlankTag, trans,
		func(ut.Translator) error { return nil },
		func(_ ut.Translator, fe validator.FieldError) string {
			return fe.Field() + " cannot be blank"
		},
	)

	return &Validator{validate: v, translator: trans}
}

// Struct は構造体を検証する。
// 検証エラーはフィールド名順に連結したメッセージを持つVALIDATION_FAILEDエラーとして返す。
func (v *Validator) Struct(s any) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return model.NewValidationError(err.Error())
	}

	fields := v.FieldErrors(verrs)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, fields[name])
	}
	return model.NewValidationError(strings.Join(msgs, "; "))
}

// FieldErrors は検証エラーをJSONフィールド名ごとのメッセージに変換する。
// 同じフィールドに複数のエラーがある場合は最初のものを採用する。
func (v *Validator) FieldErrors(verrs validator.ValidationErrors) map[string]string {
	out := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		if _, ok := out[fe.Field()]; ok {
			continue
		}
		out[fe.Field()] = fe.Translate(v.translator)
	}
	return out
}

// notBlank は文字列が空白のみでないことを検証する。
func notBlank(fl validator.FieldLevel) bool {
	if str, ok := fl.Field().Interface().(string); ok {
		return strings.TrimSpace(str) != ""
	}
	return false
}
