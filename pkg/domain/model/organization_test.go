package model_test

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/punchcard/pkg/domain/model"
)

func TestParseDocumentRef(t *testing.T) {
	const id = "1AbCdEfGhIjKlMnOpQrStUvWxYz_0123456789-ab"

	doc, err := model.ParseDocumentRef("https://docs.google.com/spreadsheets/d/" + id + "/edit#gid=0")
	gt.NoError(t, err).Required()
	gt.Value(t, doc.ID).Equal(id)
	gt.Value(t, doc.URL).Equal(model.SpreadsheetURL(id))

	doc, err = model.ParseDocumentRef("<https://docs.google.com/spreadsheets/d/" + id + ">")
	gt.NoError(t, err).Required()
	gt.Value(t, doc.ID).Equal(id)

	doc, err = model.ParseDocumentRef(id)
	gt.NoError(t, err).Required()
	gt.Value(t, doc.ID).Equal(id)

	_, err = model.ParseDocumentRef("https://example.com/sheet")
	gt.Bool(t, errors.Is(err, model.ErrParse)).True()
}

func TestOrganizationHasConfig(t *testing.T) {
	var nilOrg *model.Organization
	gt.Bool(t, nilOrg.HasConfig()).False()
	gt.Bool(t, (&model.Organization{TeamID: "T1"}).HasConfig()).False()
	gt.Bool(t, (&model.Organization{TeamID: "T1", Document: model.Document{ID: "doc"}}).HasConfig()).True()

	gt.Error(t, (&model.Organization{TeamID: "T1"}).Validate())
	gt.NoError(t, (&model.Organization{TeamID: "T1", Document: model.Document{ID: "doc"}}).Validate())
}

func TestCredentialsLogValue(t *testing.T) {
	gt.Value(t, model.Credentials(`{"private_key":"x"}`).LogValue().String()).Equal("[REDACTED]")
	gt.Value(t, model.Credentials("").LogValue().Kind()).Equal(slog.KindString)
}
