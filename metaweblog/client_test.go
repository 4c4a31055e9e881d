package metaweblog

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/xmlrpc"
)

type recordedCall struct {
	method   string
	args     []xmlrpc.Value
	id       uint64
	onResult xmlrpc.ResultFunc
	onFault  xmlrpc.FaultFunc
}

type fakeCaller struct {
	calls []recordedCall
}

func (f *fakeCaller) Call(_ context.Context, method string, args []xmlrpc.Value, id uint64, onResult xmlrpc.ResultFunc, onFault xmlrpc.FaultFunc) {
	f.calls = append(f.calls, recordedCall{
		method:   method,
		args:     args,
		id:       id,
		onResult: onResult,
		onFault:  onFault,
	})
}

func (f *fakeCaller) last(t *testing.T) recordedCall {
	t.Helper()
	if len(f.calls) == 0 {
		t.Fatal("呼び出しが記録されていません")
	}
	return f.calls[len(f.calls)-1]
}

func testBlog() *kblog.Blog {
	return &kblog.Blog{
		ServerURL: "http://blog.example.com/xmlrpc.php",
		BlogID:    "1",
		Username:  "alice",
		Password:  "secret",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestListCategoriesMapShape(t *testing.T) {
	caller := &fakeCaller{}
	var categories []kblog.Category
	events := &kblog.Events{
		ListedCategories: func(list []kblog.Category) { categories = list },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	c.ListCategories(context.Background())

	call := caller.last(t)
	if call.method != "metaWeblog.getCategories" {
		t.Errorf("method = %q, want %q", call.method, "metaWeblog.getCategories")
	}
	// 仕様準拠の形状: カテゴリ名をキーとするマップのマップ
	call.onResult([]xmlrpc.Value{xmlrpc.Struct(map[string]xmlrpc.Value{
		"旅行": xmlrpc.Struct(map[string]xmlrpc.Value{
			"description": xmlrpc.String("旅の記録"),
			"htmlUrl":     xmlrpc.String("http://blog.example.com/cat/travel"),
		}),
		"料理": xmlrpc.Struct(map[string]xmlrpc.Value{}),
	})}, call.id)

	if len(categories) != 2 {
		t.Fatalf("カテゴリ数 = %d, want 2", len(categories))
	}
	// マップのキーはソート順で列挙される
	if categories[0].Name != "旅行" && categories[1].Name != "旅行" {
		t.Errorf("カテゴリ名に %q が含まれていません: %+v", "旅行", categories)
	}
	for _, cat := range categories {
		if cat.Name == "旅行" && cat.Description != "旅の記録" {
			t.Errorf("Description = %q, want %q", cat.Description, "旅の記録")
		}
	}
}

func TestListCategoriesListShape(t *testing.T) {
	caller := &fakeCaller{}
	var categories []kblog.Category
	events := &kblog.Events{
		ListedCategories: func(list []kblog.Category) { categories = list },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	c.ListCategories(context.Background())

	call := caller.last(t)
	// 非準拠サーバー（WordPressなど）の形状: 構造体のリスト
	call.onResult([]xmlrpc.Value{xmlrpc.Array(
		xmlrpc.Struct(map[string]xmlrpc.Value{
			"categoryName": xmlrpc.String("旅行"),
			"categoryId":   xmlrpc.String("3"),
		}),
		xmlrpc.Struct(map[string]xmlrpc.Value{
			"categoryName": xmlrpc.String("料理"),
		}),
	)}, call.id)

	if len(categories) != 2 {
		t.Fatalf("カテゴリ数 = %d, want 2", len(categories))
	}
	if categories[0].Name != "旅行" {
		t.Errorf("Name = %q, want %q", categories[0].Name, "旅行")
	}
	if categories[0].CategoryID != "3" {
		t.Errorf("CategoryID = %q, want %q", categories[0].CategoryID, "3")
	}
}

func TestListCategoriesMalformed(t *testing.T) {
	caller := &fakeCaller{}
	var gotKind kblog.ErrorKind
	fired := false
	events := &kblog.Events{
		Error: func(kind kblog.ErrorKind, _ string, _ *kblog.Post, _ *kblog.Comment) {
			fired = true
			gotKind = kind
		},
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	c.ListCategories(context.Background())

	call := caller.last(t)
	call.onResult([]xmlrpc.Value{xmlrpc.String("想定外")}, call.id)

	if !fired {
		t.Fatal("Errorイベントが発火していません")
	}
	if gotKind != kblog.ParsingError {
		t.Errorf("kind = %v, want %v", gotKind, kblog.ParsingError)
	}
}

func TestCreatePostPayload(t *testing.T) {
	caller := &fakeCaller{}
	var created *kblog.Post
	events := &kblog.Events{
		CreatedPost: func(post *kblog.Post) { created = post },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	post := &kblog.Post{
		Title:      "朝の散歩",
		Content:    "公園まで歩いた。",
		Categories: []kblog.Category{{Name: "日記"}},
	}
	c.CreatePost(context.Background(), post)

	call := caller.last(t)
	if call.method != "metaWeblog.newPost" {
		t.Errorf("method = %q, want %q", call.method, "metaWeblog.newPost")
	}
	if len(call.args) != 5 {
		t.Fatalf("引数の数 = %d, want 5", len(call.args))
	}
	payload, ok := call.args[3].AsStruct()
	if !ok {
		t.Fatal("payloadが構造体ではありません")
	}
	if got := payload["title"].Text(); got != "朝の散歩" {
		t.Errorf("title = %q, want %q", got, "朝の散歩")
	}
	if got := payload["description"].Text(); got != "公園まで歩いた。" {
		t.Errorf("description = %q, want %q", got, "公園まで歩いた。")
	}
	if _, ok := payload["dateCreated"]; !ok {
		t.Error("payloadにdateCreatedがありません")
	}
	if publish, _ := call.args[4].AsBool(); !publish {
		t.Error("publishフラグ = false, want true")
	}

	call.onResult([]xmlrpc.Value{xmlrpc.String("42")}, call.id)
	if created == nil || created.PostID != "42" {
		t.Fatalf("created = %+v が期待値と一致しません", created)
	}
}

func TestModifyPostBooleanResult(t *testing.T) {
	caller := &fakeCaller{}
	var gotKind kblog.ErrorKind
	var modified *kblog.Post
	events := &kblog.Events{
		ModifiedPost: func(post *kblog.Post) { modified = post },
		Error: func(kind kblog.ErrorKind, _ string, _ *kblog.Post, _ *kblog.Comment) {
			gotKind = kind
		},
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	post := &kblog.Post{PostID: "42", Content: "更新後"}
	c.ModifyPost(context.Background(), post)

	call := caller.last(t)
	// 真偽値でない結果はパースエラー
	call.onResult([]xmlrpc.Value{xmlrpc.String("true")}, call.id)

	if modified != nil {
		t.Error("不正な結果でModifiedPostイベントが発火しました")
	}
	if gotKind != kblog.ParsingError {
		t.Errorf("kind = %v, want %v", gotKind, kblog.ParsingError)
	}
}

func TestFetchPostPartialMapping(t *testing.T) {
	caller := &fakeCaller{}
	var fetched *kblog.Post
	events := &kblog.Events{
		FetchedPost: func(post *kblog.Post) { fetched = post },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	existing := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	post := &kblog.Post{PostID: "42", CreationDateTime: existing}
	c.FetchPost(context.Background(), post)

	call := caller.last(t)
	// dateCreatedが欠落していても既存値が維持され、他のフィールドは反映される
	call.onResult([]xmlrpc.Value{xmlrpc.Struct(map[string]xmlrpc.Value{
		"postid":      xmlrpc.String("42"),
		"title":       xmlrpc.String("朝の散歩"),
		"description": xmlrpc.String("公園まで歩いた。"),
		"categories":  xmlrpc.Strings([]string{"日記"}),
	})}, call.id)

	if fetched == nil {
		t.Fatal("FetchedPostイベントが発火していません")
	}
	if !fetched.CreationDateTime.Equal(existing) {
		t.Errorf("CreationDateTime = %v が維持されていません", fetched.CreationDateTime)
	}
	if fetched.Title != "朝の散歩" {
		t.Errorf("Title = %q, want %q", fetched.Title, "朝の散歩")
	}
	if len(fetched.Categories) != 1 || fetched.Categories[0].Name != "日記" {
		t.Errorf("Categories = %+v が期待値と一致しません", fetched.Categories)
	}
}

func TestFetchPostNumericID(t *testing.T) {
	caller := &fakeCaller{}
	var fetched *kblog.Post
	events := &kblog.Events{
		FetchedPost: func(post *kblog.Post) { fetched = post },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	post := &kblog.Post{PostID: "42"}
	c.FetchPost(context.Background(), post)

	// 投稿IDを整数で返すサーバーもある
	call := caller.last(t)
	call.onResult([]xmlrpc.Value{xmlrpc.Struct(map[string]xmlrpc.Value{
		"postid":      xmlrpc.Int(42),
		"title":       xmlrpc.String("朝の散歩"),
		"description": xmlrpc.String("公園まで歩いた。"),
	})}, call.id)

	if fetched == nil {
		t.Fatal("FetchedPostイベントが発火していません")
	}
	if fetched.PostID != "42" {
		t.Errorf("PostID = %q, want %q", fetched.PostID, "42")
	}
}

func TestFetchPostAssignsIDUnconditionally(t *testing.T) {
	caller := &fakeCaller{}
	var fetched *kblog.Post
	events := &kblog.Events{
		FetchedPost: func(post *kblog.Post) { fetched = post },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	post := &kblog.Post{PostID: "42"}
	c.FetchPost(context.Background(), post)

	// postidを含まないレスポンスでは投稿IDは空文字列になる
	call := caller.last(t)
	call.onResult([]xmlrpc.Value{xmlrpc.Struct(map[string]xmlrpc.Value{
		"title": xmlrpc.String("朝の散歩"),
	})}, call.id)

	if fetched == nil {
		t.Fatal("FetchedPostイベントが発火していません")
	}
	if fetched.PostID != "" {
		t.Errorf("PostID = %q, want %q", fetched.PostID, "")
	}
}

func TestCreateMedia(t *testing.T) {
	caller := &fakeCaller{}
	var created *kblog.Media
	events := &kblog.Events{
		CreatedMedia: func(media *kblog.Media) { created = media },
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	media := &kblog.Media{
		Name:     "photo.png",
		Mimetype: "image/png",
		Data:     []byte{0x89, 0x50, 0x4e, 0x47},
	}
	c.CreateMedia(context.Background(), media)

	call := caller.last(t)
	if call.method != "metaWeblog.newMediaObject" {
		t.Errorf("method = %q, want %q", call.method, "metaWeblog.newMediaObject")
	}
	payload, ok := call.args[3].AsStruct()
	if !ok {
		t.Fatal("payloadが構造体ではありません")
	}
	if got := payload["name"].Text(); got != "photo.png" {
		t.Errorf("name = %q, want %q", got, "photo.png")
	}
	if bits, ok := payload["bits"].AsBytes(); !ok || len(bits) != 4 {
		t.Errorf("bits = %v が期待値と一致しません", bits)
	}

	call.onResult([]xmlrpc.Value{xmlrpc.Struct(map[string]xmlrpc.Value{
		"url": xmlrpc.String("http://blog.example.com/media/photo.png"),
	})}, call.id)

	if created == nil {
		t.Fatal("CreatedMediaイベントが発火していません")
	}
	if created.URL != "http://blog.example.com/media/photo.png" {
		t.Errorf("URL = %q が期待値と一致しません", created.URL)
	}
	if created.Status != kblog.MediaCreated {
		t.Errorf("Status = %v, want %v", created.Status, kblog.MediaCreated)
	}
}

func TestCreateMediaMissingURL(t *testing.T) {
	caller := &fakeCaller{}
	var gotKind kblog.ErrorKind
	errorCount := 0
	createdFired := false
	events := &kblog.Events{
		CreatedMedia: func(*kblog.Media) { createdFired = true },
		Error: func(kind kblog.ErrorKind, _ string, _ *kblog.Post, _ *kblog.Comment) {
			errorCount++
			gotKind = kind
		},
	}
	c := New(testBlog(), caller, events, WithLogger(testLogger()))

	media := &kblog.Media{Name: "photo.png", Mimetype: "image/png"}
	c.CreateMedia(context.Background(), media)

	call := caller.last(t)
	// urlフィールドのないレスポンスは黙殺せずパースエラーとして報告する
	call.onResult([]xmlrpc.Value{xmlrpc.Struct(map[string]xmlrpc.Value{})}, call.id)

	if createdFired {
		t.Error("url欠落でCreatedMediaイベントが発火しました")
	}
	if errorCount != 1 {
		t.Fatalf("Errorイベントの回数 = %d, want 1", errorCount)
	}
	if gotKind != kblog.ParsingError {
		t.Errorf("kind = %v, want %v", gotKind, kblog.ParsingError)
	}
	if media.Status != kblog.MediaError {
		t.Errorf("Status = %v, want %v", media.Status, kblog.MediaError)
	}
}

func TestDelegatedRemovePost(t *testing.T) {
	caller := &fakeCaller{}
	c := New(testBlog(), caller, &kblog.Events{}, WithLogger(testLogger()))

	post := &kblog.Post{PostID: "42"}
	c.RemovePost(context.Background(), post)

	call := caller.last(t)
	// MetaWeblogに削除メソッドはなく、Blogger 1.0に委譲される
	if call.method != "blogger.deletePost" {
		t.Errorf("method = %q, want %q", call.method, "blogger.deletePost")
	}
}
