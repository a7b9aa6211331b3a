package usecase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractContactHint_Email(t *testing.T) {
	hint := ExtractContactHint("連絡先は taro.yamada@example.co.jp です")
	require.Equal(t, "taro.yamada@example.co.jp", hint.Email)
}

func TestExtractContactHint_Phone(t *testing.T) {
	hint := ExtractContactHint("電話は03-1234-5678にお願いします")
	require.Equal(t, "03-1234-5678", hint.Phone)

	hint = ExtractContactHint("携帯は09012345678です")
	require.Equal(t, "09012345678", hint.Phone)
}

func TestExtractContactHint_Company(t *testing.T) {
	hint := ExtractContactHint("株式会社ヤマダ電機 の山田と申します")
	require.Equal(t, "株式会社ヤマダ電機", hint.Company)

	hint = ExtractContactHint("サトウ電器有限会社です。")
	require.Equal(t, "サトウ電器有限会社", hint.Company)
}

func TestExtractContactHint_AllFields(t *testing.T) {
	hint := ExtractContactHint("株式会社テスト 担当の鈴木です。メールは suzuki@test.jp、電話は06-6123-4567。")
	require.Equal(t, "株式会社テスト", hint.Company)
	require.Equal(t, "suzuki@test.jp", hint.Email)
	require.Equal(t, "06-6123-4567", hint.Phone)
}

func TestExtractContactHint_NothingFound(t *testing.T) {
	hint := ExtractContactHint("冷蔵庫から変な音がします")
	require.True(t, hint.IsZero())
}
