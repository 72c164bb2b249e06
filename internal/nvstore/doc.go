// Package nvstore provides fixed-size non-volatile regions for the device
// core's Save and Load.
//
// Every backend keeps the whole region in memory. Reads and writes touch
// only that buffer; Commit makes the buffer durable in one step, the way an
// emulated EEPROM commits its RAM shadow to flash:
//
//   - Memory: nothing is durable, Commit only counts.
//   - File: the buffer is written to a temporary file that replaces the
//     region file by rename.
//   - SQLite: the buffer is stored as a single BLOB row inside a transaction.
//
// A fresh region reads as erased (every byte 0xFF).
package nvstore
