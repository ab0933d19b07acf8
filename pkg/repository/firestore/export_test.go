package firestore

var WrapErr = wrapErr
