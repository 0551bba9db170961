// Package campaign implements the admin workflows around a gift drive:
// campaigns and their status lifecycle, families, persons and gifts.
//
// Campaign status is the gate the claim service reads; only this package
// changes it. It depends on repository interfaces defined here and should
// never import from api/.
//
// Repository implementations live in repository/postgres/ and repository/memory/.
package campaign
