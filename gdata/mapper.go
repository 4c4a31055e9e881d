package gdata

import (
	"bytes"
	"encoding/xml"
	"strings"

	"github.com/mmcdole/gofeed/atom"

	"github.com/zero804/kblog"
)

// idTail はAtomエントリのID（例: tag:blogger.com,1999:blog-1.post-42）から
// marker以降の末尾部分を取り出す。見つからない場合は空文字列を返す。
func idTail(id, marker string) string {
	idx := strings.LastIndex(id, marker)
	if idx < 0 {
		return ""
	}
	return id[idx+len(marker):]
}

// nextLink はrel="next"リンクのhrefを返す。なければ空文字列。
func nextLink(links []*atom.Link) string {
	for _, l := range links {
		if l != nil && l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

// alternateLink はrel="alternate"リンクのhrefを返す。なければ空文字列。
func alternateLink(links []*atom.Link) string {
	for _, l := range links {
		if l != nil && l.Rel == "alternate" {
			return l.Href
		}
	}
	return ""
}

// postFromEntry はAtomエントリから新しい投稿レコードを生成する。
func postFromEntry(e *atom.Entry) kblog.Post {
	var post kblog.Post
	applyEntry(&post, e)
	return post
}

// applyEntry はAtomエントリのフィールドを既存の投稿レコードに反映する。
// エントリが運ばないフィールド（JournalID、Tags、Slug、Summaryなど）は
// 呼び出し側の値をそのまま保持する。
func applyEntry(post *kblog.Post, e *atom.Entry) {
	if post == nil || e == nil {
		return
	}
	post.PostID = idTail(e.ID, "post-")
	post.Title = e.Title
	if e.Content != nil && e.Content.Value != "" {
		post.Content = e.Content.Value
	} else {
		post.Content = e.Summary
	}
	if e.PublishedParsed != nil {
		post.CreationDateTime = *e.PublishedParsed
	}
	if e.UpdatedParsed != nil {
		post.ModificationDateTime = *e.UpdatedParsed
	}
	post.Categories = post.Categories[:0]
	for _, cat := range e.Categories {
		if cat == nil || cat.Term == "" {
			continue
		}
		post.Categories = append(post.Categories, kblog.Category{Name: cat.Term})
	}
	post.Link = alternateLink(e.Links)
}

// commentFromEntry はAtomエントリをコメントにマップする。
func commentFromEntry(e *atom.Entry) kblog.Comment {
	var comment kblog.Comment
	if e == nil {
		return comment
	}
	comment.CommentID = idTail(e.ID, "comment-")
	comment.Title = e.Title
	if e.Content != nil && e.Content.Value != "" {
		comment.Content = e.Content.Value
	} else {
		comment.Content = e.Summary
	}
	if e.PublishedParsed != nil {
		comment.CreationDateTime = *e.PublishedParsed
	}
	if e.UpdatedParsed != nil {
		comment.ModificationDateTime = *e.UpdatedParsed
	}
	if len(e.Authors) > 0 && e.Authors[0] != nil {
		comment.Name = e.Authors[0].Name
		comment.Email = e.Authors[0].Email
		comment.URL = e.Authors[0].URI
	}
	comment.Status = kblog.CommentFetched
	return comment
}

// commentsFromFeed はコメントフィードの全エントリをマップする。
func commentsFromFeed(feed *atom.Feed) []kblog.Comment {
	comments := make([]kblog.Comment, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		comments = append(comments, commentFromEntry(e))
	}
	return comments
}

// profileIDFromHref はプロフィールページへのリンクからIDを取り出す。
// 例: http://www.blogger.com/profile/1234567890 → 1234567890
func profileIDFromHref(href string) string {
	idx := strings.LastIndex(href, "profile/")
	if idx < 0 {
		return ""
	}
	id := href[idx+len("profile/"):]
	if cut := strings.IndexAny(id, "?#/"); cut >= 0 {
		id = id[:cut]
	}
	for _, r := range id {
		if r < '0' || r > '9' {
			return ""
		}
	}
	if id == "" {
		return ""
	}
	return id
}

// entryText はエントリXMLのテキスト要素。
type entryText struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

type entryCategory struct {
	Scheme string `xml:"scheme,attr"`
	Term   string `xml:"term,attr"`
}

type entryControl struct {
	XMLName xml.Name `xml:"app:control"`
	Xmlns   string   `xml:"xmlns:app,attr"`
	Draft   string   `xml:"app:draft"`
}

type entryDoc struct {
	XMLName    xml.Name        `xml:"entry"`
	Xmlns      string          `xml:"xmlns,attr"`
	Title      entryText       `xml:"title"`
	Content    entryText       `xml:"content"`
	Categories []entryCategory `xml:"category,omitempty"`
	Control    *entryControl   `xml:"app:control,omitempty"`
}

const (
	atomNamespace    = "http://www.w3.org/2005/Atom"
	appNamespace     = "http://purl.org/atom/app#"
	labelScheme      = "http://www.blogger.com/atom/ns#"
	xmlDeclaration   = `<?xml version="1.0" encoding="utf-8"?>` + "\n"
	entryContentType = "xhtml"
)

// entryXML は投稿から送信用のAtomエントリXMLを組み立てる。
// 非公開の投稿にはapp:draftを付与する。
func entryXML(post *kblog.Post) []byte {
	doc := entryDoc{
		Xmlns:   atomNamespace,
		Title:   entryText{Type: "text", Value: post.Title},
		Content: entryText{Type: entryContentType, Value: post.Content},
	}
	for _, cat := range post.Categories {
		doc.Categories = append(doc.Categories, entryCategory{
			Scheme: labelScheme,
			Term:   cat.Name,
		})
	}
	if post.IsPrivate {
		doc.Control = &entryControl{Xmlns: appNamespace, Draft: "yes"}
	}
	return marshalEntry(doc)
}

// commentXML はコメントから送信用のAtomエントリXMLを組み立てる。
func commentXML(comment *kblog.Comment) []byte {
	doc := entryDoc{
		Xmlns:   atomNamespace,
		Title:   entryText{Type: "text", Value: comment.Title},
		Content: entryText{Type: entryContentType, Value: comment.Content},
	}
	return marshalEntry(doc)
}

func marshalEntry(doc entryDoc) []byte {
	var buf bytes.Buffer
	buf.WriteString(xmlDeclaration)
	// entryDocは固定形のためMarshalは失敗しない
	data, _ := xml.Marshal(doc)
	buf.Write(data)
	return buf.Bytes()
}
