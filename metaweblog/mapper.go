package metaweblog

import (
	"sort"
	"time"

	"github.com/zero804/kblog"
	"github.com/zero804/kblog/xmlrpc"
)

// payloadFromPost は投稿からcontent構造体を組み立てる。
// createがtrueの場合はdateCreated、falseの場合はlastModifiedを含める。
func payloadFromPost(post *kblog.Post, create bool) xmlrpc.Value {
	categories := make([]string, 0, len(post.Categories))
	for _, cat := range post.Categories {
		categories = append(categories, cat.Name)
	}
	fields := map[string]xmlrpc.Value{
		"categories":  xmlrpc.Strings(categories),
		"description": xmlrpc.String(post.Content),
		"title":       xmlrpc.String(post.Title),
	}
	if create {
		fields["dateCreated"] = xmlrpc.DateTime(post.CreationDateTime.UTC())
	} else {
		fields["lastModified"] = xmlrpc.DateTime(post.ModificationDateTime.UTC())
	}
	return xmlrpc.Struct(fields)
}

// readPostFromStruct はレスポンスの構造体から投稿のフィールドを読み取る。
// 部分的成功のルールは全か無かではない。存在し、かつ妥当な値の
// フィールドだけを上書きし、それ以外は既存の値を保持する。
// 戻り値がfalseになるのは入力が構造体でない場合だけである。
func readPostFromStruct(post *kblog.Post, v xmlrpc.Value) bool {
	if post == nil {
		return false
	}
	fields, ok := v.AsStruct()
	if !ok {
		return false
	}
	if created, ok := fieldTime(fields, "dateCreated"); ok {
		post.CreationDateTime = created
	}
	if modified, ok := fieldTime(fields, "lastModified"); ok {
		post.ModificationDateTime = modified
	}
	// 投稿IDは無条件に上書きする。数値で返すサーバーもあるため、
	// postidとpostIdの両方の綴りと整数型のIDを受け付ける
	id := fields["postid"].IDText()
	if id == "" {
		id = fields["postId"].IDText()
	}
	post.PostID = id
	if title := textOf(fields, "title"); title != "" {
		post.Title = title
	}
	if description := textOf(fields, "description"); description != "" {
		post.Content = description
	}
	if link := textOf(fields, "link"); link != "" {
		post.Link = link
	}
	if permaLink := textOf(fields, "permaLink"); permaLink != "" {
		post.PermaLink = permaLink
	}
	if cats, ok := fields["categories"]; ok {
		if names, ok := cats.StringList(); ok && len(names) > 0 {
			post.Categories = post.Categories[:0]
			for _, name := range names {
				post.Categories = append(post.Categories, kblog.Category{Name: name})
			}
		}
	}
	return true
}

// categoriesFromValue はgetCategoriesのレスポンスからカテゴリ一覧を読み取る。
// 仕様上の形状はカテゴリ名をキーとするマップのマップだが、実装によっては
// categoryNameキーを持つ構造体のリストを返すため、両方を受理する。
// どちらでもない場合はfalseを返す。
func categoriesFromValue(v xmlrpc.Value) ([]kblog.Category, bool) {
	switch v.Kind() {
	case xmlrpc.KindStruct:
		fields, _ := v.AsStruct()
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		categories := make([]kblog.Category, 0, len(names))
		for _, name := range names {
			cat := kblog.Category{Name: name}
			if inner, ok := fields[name].AsStruct(); ok {
				cat.Description = textOf(inner, "description")
				cat.HTMLURL = textOf(inner, "htmlUrl")
				cat.RSSURL = textOf(inner, "rssUrl")
			}
			categories = append(categories, cat)
		}
		return categories, true
	case xmlrpc.KindArray:
		list, _ := v.AsArray()
		categories := make([]kblog.Category, 0, len(list))
		for _, e := range list {
			inner, ok := e.AsStruct()
			if !ok {
				continue
			}
			categories = append(categories, kblog.Category{
				Name:        textOf(inner, "categoryName"),
				Description: textOf(inner, "description"),
				HTMLURL:     textOf(inner, "htmlUrl"),
				RSSURL:      textOf(inner, "rssUrl"),
				CategoryID:  inner["categoryId"].IDText(),
			})
		}
		return categories, true
	default:
		return nil, false
	}
}

// textOf はマップのフィールドを寛容に文字列として読み取る。
func textOf(fields map[string]xmlrpc.Value, name string) string {
	v, ok := fields[name]
	if !ok {
		return ""
	}
	return v.Text()
}

// fieldTime はマップのフィールドを日時として読み取る。
// 欠落・パース不能・ゼロ値の場合はfalseを返す。
func fieldTime(fields map[string]xmlrpc.Value, name string) (time.Time, bool) {
	v, present := fields[name]
	if !present {
		return time.Time{}, false
	}
	parsed, ok := v.AsTime()
	if !ok || parsed.IsZero() {
		return time.Time{}, false
	}
	return parsed, true
}
